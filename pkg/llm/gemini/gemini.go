// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
	"google.golang.org/genai"
)

// DefaultModel is used when neither the request nor the provider names one.
const DefaultModel = "gemini-2.5-flash"

// ContentModels is the subset of genai.Models the provider calls.
type ContentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Provider implements llm.Provider and llm.StreamingProvider for Gemini.
type Provider struct {
	models ContentModels
	model  string
	guard  *resilience.Guard
	log    *slog.Logger
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithGuard replaces the retry and circuit breaker policy.
func WithGuard(g *resilience.Guard) Option {
	return func(p *Provider) {
		p.guard = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// New builds a provider from a client configuration.
func New(ctx context.Context, cfg ClientConfig, opts ...Option) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModels(client.Models, opts...), nil
}

// NewWithModels builds a provider over an existing models client.
func NewWithModels(models ContentModels, opts ...Option) *Provider {
	p := &Provider{
		models: models,
		model:  DefaultModel,
		guard:  resilience.NewGuard("gemini.generate"),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model, contents, config := p.prepare(req)

	resp, err := resilience.Run(ctx, p.guard, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := p.models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			p.log.Warn("gemini.generate.error", slog.String("model", model), slog.String("error", err.Error()))
			return nil, ClassifyError(err, "gemini generate content")
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return convertResponse(resp), nil
}

// ChatStream implements llm.StreamingProvider. Stream failures are not
// retried because partial output may already have been delivered.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model, contents, config := p.prepare(req)
	chunks := make(chan llm.StreamChunk, 100)

	go func() {
		defer close(chunks)

		var toolCalls []llm.ToolCall
		var usage *llm.Usage
		for resp, err := range p.models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				send(ctx, chunks, llm.StreamChunk{Error: ClassifyError(err, "gemini stream")})
				return
			}
			if resp == nil {
				continue
			}
			converted := convertResponse(resp)
			toolCalls = append(toolCalls, converted.ToolCalls...)
			if resp.UsageMetadata != nil {
				u := converted.Usage
				usage = &u
			}
			if converted.Content != "" {
				if !send(ctx, chunks, llm.StreamChunk{Content: converted.Content}) {
					return
				}
			}
		}
		send(ctx, chunks, llm.StreamChunk{Done: true, ToolCalls: toolCalls, Usage: usage})
	}()

	return chunks, nil
}

func send(ctx context.Context, ch chan<- llm.StreamChunk, c llm.StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provider) prepare(req llm.ChatRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	contents, system := convertMessages(req.Messages)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertTools(req.Tools)}}
	}
	return model, contents, config
}

// convertMessages maps chat messages to genai contents. System messages are
// concatenated into the system instruction.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case llm.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case llm.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case llm.RoleTool:
			var result map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
				result = map[string]any{"result": msg.Content}
			}
			name := msg.Name
			if name == "" {
				name = msg.ToolCallID
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{ID: msg.ToolCallID, Name: name, Response: result},
				}},
			})
		}
	}
	return contents, system
}

func convertTools(tools []llm.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  toSchema(schemaMap(t.Function.Parameters)),
		})
	}
	return decls
}

// schemaMap normalizes a parameter schema of any shape into a generic map.
func schemaMap(params any) map[string]any {
	switch v := params.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		return m
	}
}

// toSchema converts a JSON Schema map to genai's OpenAPI subset.
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if f, ok := m["format"].(string); ok {
		s.Format = f
	}
	s.Enum = stringList(m["enum"])
	s.Required = stringList(m["required"])
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	out := &llm.ChatResponse{}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}
	cand := resp.Candidates[0]
	out.FinishReason = string(cand.FinishReason)
	if cand.Content == nil {
		return out
	}
	for i, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			out.Content += part.Text
		}
		if fc := part.FunctionCall; fc != nil {
			args, err := json.Marshal(fc.Args)
			if err != nil || fc.Args == nil {
				args = []byte("{}")
			}
			id := fc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, uuid.NewString()[:8])
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:       id,
				Type:     llm.ToolTypeFunction,
				Function: llm.FunctionCall{Name: fc.Name, Arguments: string(args)},
			})
		}
	}
	return out
}

var (
	_ llm.Provider          = (*Provider)(nil)
	_ llm.StreamingProvider = (*Provider)(nil)
)
