// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"sync"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

// Chat records the request and returns the configured response.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// ErrScriptExhausted is returned when a scripted provider runs out of turns.
var ErrScriptExhausted = errors.New("scripted mock: no more responses available")

// ScriptedMockProvider returns a pre-defined sequence of responses, which
// makes multi-turn tool loops testable.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	responses []ChatResponse
	Err       error
	CallCount int
	Requests  []ChatRequest
}

// NewScriptedMockProvider creates a provider answering with plain text turns.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.responses = append(s.responses, ChatResponse{Content: r})
	}
	return s
}

// AddResponse appends a full response (text and/or tool calls) to the queue.
func (s *ScriptedMockProvider) AddResponse(resp ChatResponse) *ScriptedMockProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return s
}

// AddToolCall appends a turn where the model requests a single tool call.
func (s *ScriptedMockProvider) AddToolCall(id, name, arguments string) *ScriptedMockProvider {
	return s.AddResponse(ChatResponse{ToolCalls: []ToolCall{{
		ID:       id,
		Type:     ToolTypeFunction,
		Function: FunctionCall{Name: name, Arguments: arguments},
	}}})
}

// AddText appends a plain text turn.
func (s *ScriptedMockProvider) AddText(content string) *ScriptedMockProvider {
	return s.AddResponse(ChatResponse{Content: content})
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.responses) == 0 {
		return nil, ErrScriptExhausted
	}

	resp := s.responses[0]
	s.responses = s.responses[1:]
	if resp.Usage.TotalTokens == 0 {
		resp.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	}
	return &resp, nil
}

// Remaining returns how many scripted turns are left.
func (s *ScriptedMockProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// StreamingMockProvider splits its response into word chunks.
type StreamingMockProvider struct {
	MockProvider
	Chunks []string
}

// ChatStream emits the configured chunks followed by a Done chunk.
func (s *StreamingMockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(chan StreamChunk, len(s.Chunks)+1)
	go func() {
		defer close(out)
		for _, c := range s.Chunks {
			select {
			case <-ctx.Done():
				out <- StreamChunk{Error: ctx.Err()}
				return
			case out <- StreamChunk{Content: c}:
			}
		}
		out <- StreamChunk{Done: true, Usage: &Usage{TotalTokens: len(s.Chunks)}}
	}()
	return out, nil
}

var (
	_ Provider          = (*MockProvider)(nil)
	_ Provider          = (*ScriptedMockProvider)(nil)
	_ StreamingProvider = (*StreamingMockProvider)(nil)
)
