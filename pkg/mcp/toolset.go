// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/core"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// Dialer opens a connection to one MCP server.
type Dialer func(ctx context.Context) (*Client, error)

type serverEntry struct {
	name   string
	dial   Dialer
	client *Client
	tools  []tool.Tool
	expiry time.Time
}

// Toolset owns the connections to a set of MCP servers and caches the tools
// they offer. Servers are dialed on first use.
type Toolset struct {
	mu      sync.Mutex
	servers map[string]*serverEntry
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// ToolsetOption configures a Toolset.
type ToolsetOption func(*Toolset)

// WithCacheTTL sets how long discovered tools are reused. 0 disables caching.
func WithCacheTTL(ttl time.Duration) ToolsetOption {
	return func(t *Toolset) {
		if ttl >= 0 {
			t.ttl = ttl
		}
	}
}

// WithToolsetLogger sets the logger.
func WithToolsetLogger(l *slog.Logger) ToolsetOption {
	return func(t *Toolset) {
		if l != nil {
			t.log = l
		}
	}
}

// NewToolset returns an empty toolset.
func NewToolset(opts ...ToolsetOption) *Toolset {
	t := &Toolset{
		servers: make(map[string]*serverEntry),
		ttl:     defaultCacheTTL,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = telemetry.Component(t.log, "mcp.toolset")
	return t
}

// FromConfig builds a toolset with one server per configured entry.
func FromConfig(cfg config.MCPConfig, opts ...ToolsetOption) (*Toolset, error) {
	opts = append([]ToolsetOption{WithCacheTTL(time.Duration(cfg.CacheTTLSeconds) * time.Second)}, opts...)
	ts := NewToolset(opts...)
	for name, sc := range cfg.Servers {
		dial, err := DialerFor(sc)
		if err != nil {
			return nil, kerrors.As(err).WithContext("server", name)
		}
		if err := ts.Add(name, dial); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// DialerFor returns the dialer matching a server's transport.
func DialerFor(sc config.MCPServerConfig) (Dialer, error) {
	switch sc.Transport {
	case "", "stdio":
		if sc.Command == "" {
			return nil, kerrors.New(kerrors.CodeConfiguration, "mcp stdio server needs a command", nil)
		}
		env := envList(sc.Env)
		return func(ctx context.Context) (*Client, error) {
			return NewClientWithStdio(ctx, sc.Command, sc.Args, env)
		}, nil
	case "http":
		if sc.URL == "" {
			return nil, kerrors.New(kerrors.CodeConfiguration, "mcp http server needs a url", nil)
		}
		return func(ctx context.Context) (*Client, error) {
			return NewClientWithStreamableHTTP(ctx, sc.URL)
		}, nil
	case "sse":
		if sc.URL == "" {
			return nil, kerrors.New(kerrors.CodeConfiguration, "mcp sse server needs a url", nil)
		}
		return func(ctx context.Context) (*Client, error) {
			return NewClientWithSSE(ctx, sc.URL)
		}, nil
	}
	return nil, kerrors.New(kerrors.CodeConfiguration, "unknown mcp transport "+sc.Transport, nil)
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Add registers a server under name.
func (t *Toolset) Add(name string, dial Dialer) error {
	if name == "" || dial == nil {
		return kerrors.New(kerrors.CodeInvalidInput, "mcp server needs a name and a dialer", nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.servers[name]; ok {
		return kerrors.New(kerrors.CodeConflict, "mcp server already registered", nil).
			WithContext("server", name)
	}
	t.servers[name] = &serverEntry{name: name, dial: dial}
	return nil
}

// Servers returns the registered server names in sorted order.
func (t *Toolset) Servers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.servers))
	for name := range t.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools discovers the tools of every server. A server that cannot be reached
// is logged and skipped; an error is returned only when every server failed.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	var (
		out     []tool.Tool
		lastErr error
		failed  int
	)
	names := t.Servers()
	for _, name := range names {
		tools, err := t.serverTools(ctx, name)
		if err != nil {
			failed++
			lastErr = err
			t.log.WarnContext(ctx, "mcp.server.unavailable",
				slog.String("server", name),
				slog.String("code", string(kerrors.CodeOf(err))),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, tools...)
	}
	if failed > 0 && failed == len(names) {
		return nil, lastErr
	}
	return out, nil
}

func (t *Toolset) serverTools(ctx context.Context, name string) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.servers[name]
	if !ok {
		return nil, kerrors.New(kerrors.CodeNotFound, "unknown mcp server", nil).WithContext("server", name)
	}
	if entry.tools != nil && t.ttl > 0 && t.now().Before(entry.expiry) {
		return entry.tools, nil
	}
	if entry.client == nil {
		c, err := entry.dial(ctx)
		if err != nil {
			return nil, err
		}
		entry.client = c
	}
	remote, err := entry.client.ListTools(ctx)
	if err != nil {
		// Drop the connection so the next call redials.
		_ = entry.client.Close()
		entry.client = nil
		return nil, err
	}
	tools := make([]tool.Tool, 0, len(remote))
	for _, rt := range remote {
		adapter, err := NewToolAdapter(rt, entry.client)
		if err != nil {
			t.log.WarnContext(ctx, "mcp.tool.skipped",
				slog.String("server", name),
				slog.String("tool", rt.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		tools = append(tools, adapter)
	}
	entry.tools = tools
	entry.expiry = t.now().Add(t.ttl)
	return tools, nil
}

// Register discovers tools and adds them to reg.
func (t *Toolset) Register(ctx context.Context, reg *tool.Registry) error {
	tools, err := t.Tools(ctx)
	if err != nil {
		return err
	}
	return reg.Register(tools...)
}

// Invalidate forgets the cached tools of a server.
func (t *Toolset) Invalidate(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.servers[name]; ok {
		entry.tools = nil
	}
}

// RegisterHealth adds one ping check per server to h.
func (t *Toolset) RegisterHealth(h *core.HealthRegistry) {
	for _, name := range t.Servers() {
		name := name
		h.Register("mcp."+name, core.PingChecker(func(ctx context.Context) error {
			t.mu.Lock()
			entry := t.servers[name]
			c := entry.client
			t.mu.Unlock()
			if c == nil {
				return nil
			}
			return c.Ping(ctx)
		}))
	}
}

// Close closes every open connection.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, entry := range t.servers {
		if entry.client == nil {
			continue
		}
		if err := entry.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		entry.client = nil
		entry.tools = nil
	}
	return firstErr
}
