// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp connects the tool registry to the Model Context Protocol: a
// Server publishes registry tools to MCP clients, and a Client plus
// ToolAdapter turn a remote server's tools into local tools.
package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultRetries  = 2
	defaultBackoff  = 200 * time.Millisecond
	defaultCacheTTL = 30 * time.Second

	clientName    = "vxagent"
	clientVersion = "0.1.0"
)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and initial backoff.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retry = c.retry.WithMaxAttempts(retries + 1)
		}
		if backoff > 0 {
			c.retry = c.retry.WithInitialDelay(backoff)
		}
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client wraps an mcp-go client with timeouts, retries on recoverable
// failures and a short-lived tool list cache.
type Client struct {
	mcpClient client.MCPClient
	timeout   time.Duration
	retry     resilience.RetryConfig
	cacheTTL  time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient wraps an already initialized MCP client.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	cl := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		retry: resilience.DefaultRetryConfig().
			WithMaxAttempts(defaultRetries + 1).
			WithInitialDelay(defaultBackoff),
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// NewClientWithStdio launches command and talks MCP over its stdin/stdout.
func NewClientWithStdio(ctx context.Context, command string, args, env []string, opts ...ClientOption) (*Client, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "start mcp stdio server", err).
			WithContext("command", command)
	}
	return connect(ctx, c, opts...)
}

// NewClientWithStreamableHTTP connects to an MCP server over streamable HTTP.
func NewClientWithStreamableHTTP(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "create mcp http client", err).
			WithContext("url", url)
	}
	return connect(ctx, c, opts...)
}

// NewClientWithSSE connects to an MCP server over server-sent events.
func NewClientWithSSE(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c, err := client.NewSSEMCPClient(url)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "create mcp sse client", err).
			WithContext("url", url)
	}
	return connect(ctx, c, opts...)
}

// connect starts the transport and performs the initialize handshake.
func connect(ctx context.Context, c *client.Client, opts ...ClientOption) (*Client, error) {
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, kerrors.Classify(err, "start mcp transport")
	}

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := c.Initialize(initCtx, req); err != nil {
		_ = c.Close()
		return nil, kerrors.Classify(err, "initialize mcp session")
	}
	return NewClient(c, opts...), nil
}

// ListTools retrieves the tools offered by the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	resp, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) (*mcp.ListToolsResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		res, err := c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, classify(err, "list mcp tools")
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(resp.Tools)
	return resp.Tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	return resilience.Retry(ctx, c.retry, func(ctx context.Context) (*mcp.CallToolResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		res, err := c.mcpClient.CallTool(reqCtx, req)
		if err != nil {
			return nil, classify(err, "call mcp tool").WithContext("tool", name)
		}
		return res, nil
	})
}

// Ping checks that the server still answers.
func (c *Client) Ping(ctx context.Context) error {
	reqCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.mcpClient.Ping(reqCtx); err != nil {
		return classify(err, "ping mcp server")
	}
	return nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

// classify types a transport failure. Untyped errors from the transport are
// treated as transient so the retry policy gets a chance, but a cancelled
// caller is never retried.
func classify(err error, msg string) *kerrors.Error {
	if err == nil {
		return nil
	}
	e := kerrors.Classify(err, msg)
	if e.Code == kerrors.CodeInternal {
		e = kerrors.New(kerrors.CodeTransient, msg, err)
	}
	return e
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
