package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/core"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/documents"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/mcp"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/runner"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

func newRunner(t *testing.T, p llm.Provider) *runner.Runner {
	t.Helper()
	a, err := agent.New("assistant", p)
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	r, err := runner.New(a, session.NewInMemoryStore())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	return r
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Runner == nil {
		opts.Runner = newRunner(t, &llm.MockProvider{Response: "hi there"})
	}
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	defer resp.Body.Close()
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestChatJSON(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+"/chat", map[string]any{
		"app_name": "app", "user_id": "u1", "message": "hello",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var res runner.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Response != "hi there" {
		t.Errorf("expected response, got %q", res.Response)
	}
	if !strings.HasPrefix(res.SessionID, "sess-") {
		t.Errorf("expected generated session id, got %q", res.SessionID)
	}
	if len(res.Events) == 0 || res.Events[len(res.Events)-1].Type != agent.EventFinal {
		t.Errorf("expected events ending with final, got %+v", res.Events)
	}
}

func TestChatStream(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+"/chat", map[string]any{
		"app_name": "app", "user_id": "u1", "session_id": "s1", "message": "hello", "stream": true,
	})
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}
	if resp.Header.Get("X-Session-ID") != "s1" {
		t.Fatalf("expected session header, got %q", resp.Header.Get("X-Session-ID"))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(body)
	if !strings.Contains(text, "event: model.text\n") || !strings.Contains(text, "event: final\n") {
		t.Fatalf("missing events in stream:\n%s", text)
	}
	if strings.Index(text, "event: final") < strings.Index(text, "event: model.text") {
		t.Fatalf("final must come last:\n%s", text)
	}
}

func TestChatErrors(t *testing.T) {
	ts := newTestServer(t, Options{Runner: newRunner(t, &llm.MockProvider{Err: errors.New("backend exploded")})})

	tests := []struct {
		name   string
		body   string
		status int
		code   kerrors.ErrorCode
	}{
		{"malformed json", `{`, http.StatusBadRequest, kerrors.CodeInvalidInput},
		{"missing user", `{"app_name":"a","message":"x"}`, http.StatusBadRequest, kerrors.CodeInvalidInput},
		{"blank message", `{"app_name":"a","user_id":"u","message":"  "}`, http.StatusBadRequest, kerrors.CodeInvalidInput},
		{"model failure", `{"app_name":"a","user_id":"u","message":"x"}`, http.StatusBadGateway, kerrors.CodeLLMError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if e := decodeError(t, resp); e.Code != string(tt.code) {
				t.Errorf("code = %s, want %s (%s)", e.Code, tt.code, e.Error)
			}
		})
	}
}

type staticExtractor struct{ calls atomic.Int32 }

func (s *staticExtractor) Extract(_ context.Context, name, mimeType string, data []byte) (*documents.Extraction, error) {
	s.calls.Add(1)
	return &documents.Extraction{Fields: map[string]any{"invoice_number": "INV-7", "bytes": len(data)}}, nil
}

func upload(t *testing.T, url, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestDocumentRoutes(t *testing.T) {
	store, err := documents.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ex := &staticExtractor{}
	ts := newTestServer(t, Options{Documents: &documents.Pipeline{Store: store, Extractor: ex}})

	resp := upload(t, ts.URL+"/extract", "invoice.pdf", "%PDF-1.4")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extract status %d: %+v", resp.StatusCode, decodeError(t, resp))
	}
	var ext documents.Extraction
	if err := json.NewDecoder(resp.Body).Decode(&ext); err != nil {
		t.Fatalf("decode extraction: %v", err)
	}
	resp.Body.Close()
	if ext.Fields["invoice_number"] != "INV-7" {
		t.Fatalf("unexpected extraction %+v", ext)
	}

	resp = upload(t, ts.URL+"/extract", "invoice.pdf", "%PDF-1.4")
	resp.Body.Close()
	if n := ex.calls.Load(); n != 1 {
		t.Fatalf("expected cached extraction, extractor ran %d times", n)
	}

	resp = upload(t, ts.URL+"/extract", "invoice.pdf", "%PDF-1.5 revised")
	resp.Body.Close()
	if n := ex.calls.Load(); n != 2 {
		t.Fatalf("changed bytes should re-extract, extractor ran %d times", n)
	}

	resp = upload(t, ts.URL+"/extract", "invoice.pdf.json", "{}")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("reserved name accepted with status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/documents")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var infos []documents.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(infos) != 1 || infos[0].Name != "invoice.pdf" || !infos[0].HasExtraction {
		t.Fatalf("unexpected listing %+v", infos)
	}

	resp, err = http.Get(ts.URL + "/api/documents/invoice.pdf/data")
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("data status %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/documents/invoice.pdf", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/documents/invoice.pdf/data")
	if err != nil {
		t.Fatalf("data after delete: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != string(kerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %s", e.Code)
	}
}

func TestExtractRejectsMissingFile(t *testing.T) {
	store, err := documents.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ts := newTestServer(t, Options{Documents: &documents.Pipeline{Store: store, Extractor: &staticExtractor{}}})

	resp, err := http.Post(ts.URL+"/extract", "text/plain", strings.NewReader("nope"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDocumentRoutesAbsentWithoutPipeline(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/api/documents")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	health := core.NewHealthRegistry(0)
	health.Register("vector", core.StaticChecker(core.HealthHealthy, "ok"))
	ts := newTestServer(t, Options{Health: health})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body.Status != core.HealthHealthy || len(body.Components) != 1 {
		t.Fatalf("unexpected health %d %+v", resp.StatusCode, body)
	}

	health.Register("sessions", core.StaticChecker(core.HealthUnhealthy, "database locked"))
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestMCPOverSSE(t *testing.T) {
	reg := tool.NewRegistry().MustRegister(&tool.Func{
		ToolName:        "echo",
		ToolDescription: "Repeats the text.",
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	})
	mcpSrv, err := mcp.NewServer("vxagent", "test", reg)
	if err != nil {
		t.Fatalf("mcp server: %v", err)
	}
	ts := newTestServer(t, Options{MCP: mcpSrv})

	ctx := context.Background()
	cl, err := mcp.NewClientWithSSE(ctx, ts.URL+"/sse")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cl.Close()

	tools, err := cl.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("unexpected tools %+v", tools)
	}
	res, err := cl.CallTool(ctx, "echo", map[string]any{"text": "over sse"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result %+v", res)
	}

	resp, err := http.Post(ts.URL+"/messages/unknown-session", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "Invalid session ID") {
		t.Fatalf("expected the SSE transport to reject the session, got %s", body)
	}
}
