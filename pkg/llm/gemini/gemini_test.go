package gemini

import (
	"context"
	"errors"
	"iter"
	"testing"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
	"google.golang.org/genai"
)

type fakeModels struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastCfg   *genai.GenerateContentConfig
	lastIn    []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.lastCfg, f.lastIn = cfg, contents
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeModels) GenerateContentStream(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range f.responses {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 2, CandidatesTokenCount: 3, TotalTokenCount: 5},
	}
}

func fastGuard() *resilience.Guard {
	g := resilience.NewGuard("test")
	g.Retry = g.Retry.WithInitialDelay(0).WithMaxDelay(0)
	return g
}

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "time?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Function: llm.FunctionCall{Name: "get_current_datetime", Arguments: `{"timezone":"UTC"}`}}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Name: "get_current_datetime", Content: "2026-01-02T10:00:00Z"},
	})
	if system != "be brief" {
		t.Fatalf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	fc := contents[1].Parts[0].FunctionCall
	if fc == nil || fc.Name != "get_current_datetime" || fc.Args["timezone"] != "UTC" {
		t.Fatalf("unexpected function call %+v", fc)
	}
	fr := contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "get_current_datetime" || fr.Response["result"] != "2026-01-02T10:00:00Z" {
		t.Fatalf("unexpected function response %+v", fr)
	}
}

func TestToSchema(t *testing.T) {
	s := toSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"labels": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"labels"},
	})
	if s.Type != genai.TypeObject {
		t.Fatalf("type = %s", s.Type)
	}
	if s.Properties["labels"].Items.Type != genai.TypeString {
		t.Fatalf("items not converted")
	}
	if len(s.Required) != 1 || s.Required[0] != "labels" {
		t.Fatalf("required = %v", s.Required)
	}
}

func TestChatConvertsToolCalls(t *testing.T) {
	fm := &fakeModels{responses: []*genai.GenerateContentResponse{{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "days_between", Args: map[string]any{"start": "2026-01-01"}}},
		}}}},
	}}}
	p := NewWithModels(fm, WithGuard(fastGuard()))

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "how long?"}},
		Tools:    []llm.Tool{{Type: llm.ToolTypeFunction, Function: llm.FunctionDef{Name: "days_between", Parameters: map[string]any{"type": "object"}}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Arguments != `{"start":"2026-01-01"}` {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].ID == "" {
		t.Fatalf("expected generated call id")
	}
	if len(fm.lastCfg.Tools) != 1 || fm.lastCfg.Tools[0].FunctionDeclarations[0].Name != "days_between" {
		t.Fatalf("tools not forwarded")
	}
}

func TestChatRetriesTransientAPIError(t *testing.T) {
	fm := &fakeModels{
		responses: []*genai.GenerateContentResponse{textResponse("hello")},
		errs:      []error{genai.APIError{Code: 503, Status: "UNAVAILABLE"}},
	}
	p := NewWithModels(fm, WithGuard(fastGuard()))

	resp, err := p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "hello" || fm.calls != 2 {
		t.Fatalf("content=%q calls=%d", resp.Content, fm.calls)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Fatalf("usage not mapped")
	}
}

func TestChatDoesNotRetryBadRequest(t *testing.T) {
	fm := &fakeModels{
		responses: []*genai.GenerateContentResponse{textResponse("unused")},
		errs:      []error{genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}},
	}
	p := NewWithModels(fm, WithGuard(fastGuard()))

	_, err := p.Chat(context.Background(), llm.ChatRequest{})
	if !kerrors.Is(err, kerrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if fm.calls != 1 {
		t.Fatalf("expected a single call, got %d", fm.calls)
	}
}

func TestChatStream(t *testing.T) {
	fm := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("Hel"), textResponse("lo")}}
	p := NewWithModels(fm)

	ch, err := p.ChatStream(context.Background(), llm.ChatRequest{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var text string
	var last llm.StreamChunk
	for c := range ch {
		text += c.Content
		last = c
	}
	if text != "Hello" || !last.Done || last.Usage == nil {
		t.Fatalf("text=%q last=%+v", text, last)
	}
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		ok   bool
	}{
		{"gemini with key", ClientConfig{Backend: "gemini", APIKey: "k"}, true},
		{"gemini without key", ClientConfig{Backend: "gemini"}, false},
		{"vertex", ClientConfig{Backend: "vertex", Project: "p", Location: "us-central1"}, true},
		{"vertex missing location", ClientConfig{Backend: "vertex", Project: "p"}, false},
		{"unknown", ClientConfig{Backend: "azure"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v", err)
			}
			if err != nil && !kerrors.Is(err, kerrors.CodeConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestClassifyErrorPlain(t *testing.T) {
	err := ClassifyError(errors.New("weird"), "gemini")
	if !kerrors.Is(err, kerrors.CodeLLMError) {
		t.Fatalf("expected llm error, got %v", err)
	}
}
