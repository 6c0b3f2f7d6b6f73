package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
	if len(mock.Requests()) != 1 {
		t.Errorf("expected request to be recorded")
	}
}

func TestScriptedMockProvider(t *testing.T) {
	s := NewScriptedMockProvider().
		AddToolCall("c1", "get_time", `{"tz":"UTC"}`).
		AddText("done")

	first, err := s.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Function.Name != "get_time" {
		t.Fatalf("expected tool call, got %+v", first)
	}
	second, err := s.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if second.Content != "done" {
		t.Fatalf("expected done, got %q", second.Content)
	}
	if _, err := s.Chat(context.Background(), ChatRequest{}); !errors.Is(err, ErrScriptExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if s.CallCount != 3 {
		t.Fatalf("expected 3 calls, got %d", s.CallCount)
	}
}

func TestStreamingMockProvider(t *testing.T) {
	s := &StreamingMockProvider{Chunks: []string{"a", "b"}}
	ch, err := s.ChatStream(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var text string
	var done bool
	for c := range ch {
		text += c.Content
		done = done || c.Done
	}
	if text != "ab" || !done {
		t.Fatalf("unexpected stream result %q done=%v", text, done)
	}
}

func TestOllamaChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_time","arguments":{"tz":"UTC"}}}]},"done":true,"prompt_eval_count":3,"eval_count":4}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "time?"}}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Function.Arguments != `{"tz":"UTC"}` {
		t.Fatalf("unexpected arguments %s", resp.ToolCalls[0].Function.Arguments)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("expected 7 tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestOllamaChatStatusClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{})
	if !kerrors.Is(err, kerrors.CodeTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !kerrors.IsRecoverable(err) {
		t.Fatalf("expected recoverable error")
	}
}
