package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Emit(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func newInvocation(input string, state map[string]any, c *collector) *Invocation {
	sess := &session.Session{
		Key:   session.Key{AppName: "app", UserID: "u", SessionID: "s"},
		State: state,
	}
	if c == nil {
		return NewInvocation(sess, input, nil)
	}
	return NewInvocation(sess, input, c)
}

func timeTools(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	err := r.Register(&tool.Func{
		ToolName: "get_time",
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			return "12:00 " + args["tz"].(string), nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func mustNew(t *testing.T, name string, p llm.Provider, opts ...Option) *LLMAgent {
	t.Helper()
	a, err := New(name, p, opts...)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return a
}

func TestLLMAgentToolLoop(t *testing.T) {
	p := llm.NewScriptedMockProvider().
		AddToolCall("c1", "get_time", `{"tz":"UTC"}`).
		AddText("It is noon.")
	a := mustNew(t, "assistant", p, WithTools(timeTools(t)), WithOutputKey("answer"), WithModel("m"))

	c := &collector{}
	inv := newInvocation("what time is it?", nil, c)
	if err := a.Run(context.Background(), inv); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []EventType{EventToolCall, EventToolResult, EventModelText}
	got := c.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if inv.State().GetString("answer") != "It is noon." {
		t.Fatalf("output key not written: %v", inv.State().Snapshot())
	}

	second := p.Requests[1].Messages
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "c1" || last.Content != "12:00 UTC" {
		t.Fatalf("unexpected tool message %+v", last)
	}
	if len(p.Requests[0].Tools) != 1 {
		t.Fatalf("tool declarations not sent")
	}
}

func TestLLMAgentToolErrorDoesNotAbort(t *testing.T) {
	p := llm.NewScriptedMockProvider().
		AddToolCall("c1", "missing_tool", `{}`).
		AddText("Sorry, I could not do that.")
	a := mustNew(t, "assistant", p)

	c := &collector{}
	if err := a.Run(context.Background(), newInvocation("hi", nil, c)); err != nil {
		t.Fatalf("run: %v", err)
	}
	var result *ToolResult
	for _, ev := range c.events {
		if ev.Type == EventToolResult {
			result = ev.ToolResult
		}
	}
	if result == nil || !result.IsError || !strings.HasPrefix(result.Output, "Error: ") {
		t.Fatalf("expected error tool result, got %+v", result)
	}
}

func TestLLMAgentMaxIterations(t *testing.T) {
	p := &llm.MockProvider{ChatFunc: func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{ToolCalls: []llm.ToolCall{{ID: "c", Function: llm.FunctionCall{Name: "get_time", Arguments: `{"tz":"UTC"}`}}}}, nil
	}}
	a := mustNew(t, "looper", p, WithTools(timeTools(t)), WithMaxIterations(3))

	err := a.Run(context.Background(), newInvocation("loop", nil, nil))
	if !kerrors.Is(err, kerrors.CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if n := len(p.Requests()); n != 3 {
		t.Fatalf("expected 3 model calls, got %d", n)
	}
}

func TestLLMAgentProviderError(t *testing.T) {
	a := mustNew(t, "assistant", &llm.MockProvider{Err: errors.New("quota")})
	err := a.Run(context.Background(), newInvocation("hi", nil, nil))
	if !kerrors.Is(err, kerrors.CodeLLMError) {
		t.Fatalf("expected llm error, got %v", err)
	}
}

func TestLLMAgentInstructionUsesState(t *testing.T) {
	p := &llm.MockProvider{Response: "ok"}
	a := mustNew(t, "reviewer", p, WithInstruction("Validation: {{.validation_status}}"))

	if err := a.Run(context.Background(), newInvocation("", map[string]any{"validation_status": "passed"}, nil)); err != nil {
		t.Fatalf("run: %v", err)
	}
	msgs := p.Requests()[0].Messages
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != "Validation: passed" {
		t.Fatalf("unexpected system message %+v", msgs[0])
	}
}

func TestLLMAgentHistory(t *testing.T) {
	p := &llm.MockProvider{Response: "ok"}
	a := mustNew(t, "assistant", p, WithHistory(session.WindowStrategy{MaxMessages: 1}))

	inv := newInvocation("next", nil, nil)
	inv.History = []session.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "reply"},
	}
	if err := a.Run(context.Background(), inv); err != nil {
		t.Fatalf("run: %v", err)
	}
	msgs := p.Requests()[0].Messages
	if len(msgs) != 2 || msgs[0].Content != "reply" || msgs[1].Content != "next" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

type fakeRetriever struct {
	text string
	err  error
}

func (f fakeRetriever) SearchContext(context.Context, string, int) (string, error) {
	return f.text, f.err
}

func TestLLMAgentRetrieval(t *testing.T) {
	p := &llm.MockProvider{Response: "ok"}
	a := mustNew(t, "assistant", p, WithRetriever(fakeRetriever{text: "1. doc"}, 3))
	if err := a.Run(context.Background(), newInvocation("q", nil, nil)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if msgs := p.Requests()[0].Messages; !strings.Contains(msgs[0].Content, "1. doc") {
		t.Fatalf("context not injected: %+v", msgs)
	}

	p = &llm.MockProvider{Response: "ok"}
	a = mustNew(t, "assistant", p, WithRetriever(fakeRetriever{err: errors.New("index down")}, 3))
	if err := a.Run(context.Background(), newInvocation("q", nil, nil)); err != nil {
		t.Fatalf("retrieval failure should degrade, got %v", err)
	}
	if msgs := p.Requests()[0].Messages; len(msgs) != 1 || msgs[0].Role != llm.RoleUser {
		t.Fatalf("expected only the user message, got %+v", msgs)
	}
}

func TestLLMAgentStreaming(t *testing.T) {
	p := &llm.StreamingMockProvider{Chunks: []string{"Hel", "lo"}}
	a := mustNew(t, "assistant", p, WithStreaming(true), WithOutputKey("out"))

	c := &collector{}
	inv := newInvocation("hi", nil, c)
	if err := a.Run(context.Background(), inv); err != nil {
		t.Fatalf("run: %v", err)
	}
	deltas := 0
	for _, ev := range c.events {
		if ev.Type == EventModelDelta {
			deltas++
		}
	}
	if deltas != 2 {
		t.Fatalf("expected 2 deltas, got %d", deltas)
	}
	if inv.State().GetString("out") != "Hello" {
		t.Fatalf("unexpected output %q", inv.State().GetString("out"))
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", &llm.MockProvider{}); !kerrors.Is(err, kerrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := New("a", nil); !kerrors.Is(err, kerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := New("a", &llm.MockProvider{}, WithMaxIterations(0)); err == nil {
		t.Fatalf("expected error for zero iterations")
	}
}
