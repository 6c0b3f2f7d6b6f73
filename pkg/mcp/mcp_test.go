package mcp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

func testRegistry() *tool.Registry {
	return tool.NewRegistry().MustRegister(
		&tool.Func{
			ToolName:        "echo",
			ToolDescription: "Repeats the text.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
				"required":   []any{"text"},
			},
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				return args["text"], nil
			},
		},
		&tool.Func{
			ToolName:        "weather",
			ToolDescription: "Reports the weather.",
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{"city": "Paris", "sky": "clear"}, nil
			},
		},
		&tool.Func{
			ToolName:        "broken",
			ToolDescription: "Always fails.",
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				return nil, errors.New("disk on fire")
			},
		},
	)
}

func inProcessClient(t *testing.T) *Client {
	t.Helper()
	srv, err := NewServer("test", "1.0.0", testRegistry())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	c, err := client.NewInProcessClient(srv.MCPServer())
	if err != nil {
		t.Fatalf("NewInProcessClient: %v", err)
	}
	cl, err := connect(context.Background(), c)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = cl.Close() })
	return cl
}

func findTool(t *testing.T, tools []mcpgo.Tool, name string) mcpgo.Tool {
	t.Helper()
	for _, tl := range tools {
		if tl.Name == name {
			return tl
		}
	}
	t.Fatalf("tool %q not listed in %+v", name, tools)
	return mcpgo.Tool{}
}

func TestServerExposesRegistry(t *testing.T) {
	cl := inProcessClient(t)
	ctx := context.Background()

	tools, err := cl.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}

	res, err := cl.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || extractTextContent(res.Content) != "hi" {
		t.Fatalf("unexpected echo result %+v", res)
	}

	res, err = cl.CallTool(ctx, "broken", nil)
	if err != nil {
		t.Fatalf("CallTool broken: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result")
	}
	if got := extractTextContent(res.Content); got != "Error: disk on fire" {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestNewServerRequiresRegistry(t *testing.T) {
	if _, err := NewServer("x", "1", nil); !kerrors.Is(err, kerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestToolAdapter(t *testing.T) {
	cl := inProcessClient(t)
	ctx := context.Background()
	tools, err := cl.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	echo, err := NewToolAdapter(findTool(t, tools, "echo"), cl)
	if err != nil {
		t.Fatalf("NewToolAdapter: %v", err)
	}
	if echo.Description() != "Repeats the text." {
		t.Errorf("unexpected description %q", echo.Description())
	}
	if req, ok := echo.Schema()["required"].([]any); !ok || len(req) != 1 || req[0] != "text" {
		t.Errorf("expected required text in schema, got %v", echo.Schema())
	}
	out, err := echo.Call(ctx, map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected hello, got %v", out)
	}

	weather, err := NewToolAdapter(findTool(t, tools, "weather"), cl)
	if err != nil {
		t.Fatalf("NewToolAdapter weather: %v", err)
	}
	out, err = weather.Call(ctx, nil)
	if err != nil {
		t.Fatalf("Call weather: %v", err)
	}
	obj, ok := out.(map[string]any)
	if !ok || obj["city"] != "Paris" {
		t.Fatalf("expected structured content, got %#v", out)
	}

	broken, err := NewToolAdapter(findTool(t, tools, "broken"), cl)
	if err != nil {
		t.Fatalf("NewToolAdapter broken: %v", err)
	}
	if _, err := broken.Call(ctx, nil); !kerrors.Is(err, kerrors.CodeToolFailure) {
		t.Fatalf("expected tool failure, got %v", err)
	}
}

func TestToolAdapterRequiredArgs(t *testing.T) {
	remote := mcpgo.NewTool("lookup",
		mcpgo.WithString("url", mcpgo.Required()),
	)
	caller := &fakeCaller{}
	adapter, err := NewToolAdapter(remote, caller)
	if err != nil {
		t.Fatalf("NewToolAdapter: %v", err)
	}
	if _, err := adapter.Call(context.Background(), map[string]any{}); !kerrors.Is(err, kerrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if caller.calls.Load() != 0 {
		t.Fatalf("caller should not be reached")
	}
}

func TestToolAdapterValidation(t *testing.T) {
	if _, err := NewToolAdapter(mcpgo.Tool{}, &fakeCaller{}); !kerrors.Is(err, kerrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for empty name, got %v", err)
	}
	if _, err := NewToolAdapter(mcpgo.NewTool("x"), nil); !kerrors.Is(err, kerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error for nil caller, got %v", err)
	}
}

type fakeCaller struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCaller) CallTool(ctx context.Context, name string, args map[string]any) (*mcpgo.CallToolResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return mcpgo.NewToolResultText("ok"), nil
}

func TestClient_StreamableHTTP_ListTools(t *testing.T) {
	srv, err := NewServer("test-http", "1.0.0", testRegistry())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	httpServer := mcpserver.NewTestStreamableHTTPServer(srv.MCPServer())
	defer httpServer.Close()

	cl, err := NewClientWithStreamableHTTP(context.Background(), httpServer.URL)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTP: %v", err)
	}
	defer cl.Close()

	tools, err := cl.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools error: %v", err)
	}
	findTool(t, tools, "echo")
}

func TestToolsetCachesAndDegrades(t *testing.T) {
	srv, err := NewServer("test", "1.0.0", testRegistry())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	var dials atomic.Int32
	ts := NewToolset(WithCacheTTL(time.Minute))
	err = ts.Add("local", func(ctx context.Context) (*Client, error) {
		dials.Add(1)
		c, err := client.NewInProcessClient(srv.MCPServer())
		if err != nil {
			return nil, err
		}
		return connect(ctx, c, WithToolCacheTTL(0))
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	err = ts.Add("down", func(ctx context.Context) (*Client, error) {
		return nil, kerrors.New(kerrors.CodeTransient, "connection refused", nil)
	})
	if err != nil {
		t.Fatalf("Add down: %v", err)
	}
	defer ts.Close()

	if err := ts.Add("local", func(ctx context.Context) (*Client, error) { return nil, nil }); !kerrors.Is(err, kerrors.CodeConflict) {
		t.Fatalf("expected conflict for duplicate server, got %v", err)
	}

	ctx := context.Background()
	first, err := ts.Tools(ctx)
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 tools from the reachable server, got %d", len(first))
	}
	if _, err := ts.Tools(ctx); err != nil {
		t.Fatalf("Tools again: %v", err)
	}
	if dials.Load() != 1 {
		t.Fatalf("expected a single dial, got %d", dials.Load())
	}

	reg := tool.NewRegistry()
	if err := ts.Register(ctx, reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res := reg.Invoke(ctx, "echo", map[string]any{"text": "via registry"})
	if res.IsError || res.Output != "via registry" {
		t.Fatalf("unexpected registry result %+v", res)
	}
}

func TestToolsetAllServersDown(t *testing.T) {
	ts := NewToolset()
	_ = ts.Add("down", func(ctx context.Context) (*Client, error) {
		return nil, kerrors.New(kerrors.CodeTransient, "connection refused", nil)
	})
	if _, err := ts.Tools(context.Background()); !kerrors.Is(err, kerrors.CodeTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDialerForValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MCPServerConfig
	}{
		{"stdio without command", config.MCPServerConfig{Transport: "stdio"}},
		{"http without url", config.MCPServerConfig{Transport: "http"}},
		{"sse without url", config.MCPServerConfig{Transport: "sse"}},
		{"unknown transport", config.MCPServerConfig{Transport: "carrier-pigeon", URL: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DialerFor(tt.cfg); !kerrors.Is(err, kerrors.CodeConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestClassifyTransportErrors(t *testing.T) {
	if got := classify(errors.New("eof"), "x"); got.Code != kerrors.CodeTransient {
		t.Fatalf("expected transient, got %s", got.Code)
	}
	if got := classify(context.Canceled, "x"); got.Recoverable {
		t.Fatalf("cancellation must not be retried")
	}
}
