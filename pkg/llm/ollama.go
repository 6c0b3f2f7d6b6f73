// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// OllamaProvider implements the Provider interface for a local Ollama server.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates a new OllamaProvider.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Ollama sends tool call arguments as JSON objects, not strings.
type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []Tool          `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	EvalCount       int           `json:"eval_count"`
	PromptEvalCount int           `json:"prompt_eval_count"`
}

func (p *OllamaProvider) buildRequest(req ChatRequest, stream bool) ollamaRequest {
	msgs := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content, ToolName: m.Name}
		for _, tc := range m.ToolCalls {
			var call ollamaToolCall
			call.Function.Name = tc.Function.Name
			args := tc.Function.Arguments
			if args == "" {
				args = "{}"
			}
			call.Function.Arguments = json.RawMessage(args)
			om.ToolCalls = append(om.ToolCalls, call)
		}
		msgs = append(msgs, om)
	}
	oReq := ollamaRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   stream,
		Tools:    req.Tools,
	}
	if req.Temperature != 0 {
		oReq.Options = map[string]any{"temperature": req.Temperature}
	}
	return oReq
}

func (p *OllamaProvider) post(ctx context.Context, body ollamaRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "marshal ollama request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "create ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, kerrors.Classify(err, "ollama api call failed")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, kerrors.FromStatus(resp.StatusCode,
			fmt.Sprintf("ollama api returned status %d", resp.StatusCode),
			fmt.Errorf("%s", respBody))
	}
	return resp, nil
}

// Chat sends a chat request to Ollama and maps the response to ChatResponse.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "decode ollama response", err)
	}

	return &ChatResponse{
		Content:      oResp.Message.Content,
		ToolCalls:    convertOllamaToolCalls(oResp.Message.ToolCalls),
		FinishReason: oResp.DoneReason,
		Usage: Usage{
			PromptTokens:     oResp.PromptEvalCount,
			CompletionTokens: oResp.EvalCount,
			TotalTokens:      oResp.PromptEvalCount + oResp.EvalCount,
		},
	}, nil
}

// ChatStream implements StreamingProvider over Ollama's NDJSON stream.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		var toolCalls []ToolCall
		for {
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err()}
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					chunks <- StreamChunk{Error: kerrors.Classify(err, "ollama stream read")}
				}
				return
			}

			var event ollamaResponse
			if err := json.Unmarshal(line, &event); err != nil {
				continue
			}
			// Ollama sends complete tool calls, not deltas.
			if len(event.Message.ToolCalls) > 0 {
				toolCalls = convertOllamaToolCalls(event.Message.ToolCalls)
			}
			if event.Done {
				chunks <- StreamChunk{
					Done:      true,
					ToolCalls: toolCalls,
					Usage: &Usage{
						PromptTokens:     event.PromptEvalCount,
						CompletionTokens: event.EvalCount,
						TotalTokens:      event.PromptEvalCount + event.EvalCount,
					},
				}
				return
			}
			if event.Message.Content != "" {
				chunks <- StreamChunk{Content: event.Message.Content}
			}
		}
	}()

	return chunks, nil
}

func convertOllamaToolCalls(calls []ollamaToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for i, c := range calls {
		args := string(c.Function.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		out = append(out, ToolCall{
			ID:       fmt.Sprintf("call_%d_%s", i, c.Function.Name),
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: c.Function.Name, Arguments: args},
		})
	}
	return out
}

var _ StreamingProvider = (*OllamaProvider)(nil)
