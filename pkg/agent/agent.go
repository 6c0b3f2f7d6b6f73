// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the model-driven agent loop and the sequential
// and parallel compositions used to build multi-agent pipelines.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/core"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/prompt"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// DefaultMaxIterations bounds the model/tool loop of one run.
const DefaultMaxIterations = 5

// Agent is a unit that takes part in a run.
type Agent interface {
	Name() string
	Run(ctx context.Context, inv *Invocation) error
}

// OutputKeyer is implemented by agents that write their answer to state.
type OutputKeyer interface {
	OutputKey() string
}

// ContextRetriever renders knowledge base matches as prompt text.
type ContextRetriever interface {
	SearchContext(ctx context.Context, query string, topK int) (string, error)
}

// LLMAgent answers with a model, calling tools until the model stops
// asking for them. It is immutable after New.
type LLMAgent struct {
	name          string
	description   string
	model         string
	instruction   string
	tools         *tool.Registry
	outputKey     string
	maxIterations int
	temperature   float64
	streaming     bool
	provider      llm.Provider
	history       session.HistoryStrategy
	retriever     ContextRetriever
	retrieveTopK  int
	metrics       *telemetry.Metrics
	log           *slog.Logger
	tracer        trace.Tracer
}

// Option configures an LLMAgent.
type Option func(*LLMAgent) error

// New creates an agent backed by provider.
func New(name string, provider llm.Provider, opts ...Option) (*LLMAgent, error) {
	a := &LLMAgent{
		name:          name,
		provider:      provider,
		maxIterations: DefaultMaxIterations,
		retrieveTopK:  5,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(a.name) == "" {
		return nil, NewInvalidInputError("agent name is required")
	}
	if a.provider == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "agent "+a.name+" has no model provider", nil)
	}
	if a.tools == nil {
		a.tools = tool.NewRegistry()
	}
	if a.log == nil {
		a.log = telemetry.Component(slog.Default(), "agent")
	}
	a.tracer = otel.Tracer(telemetry.TracerName)
	return a, nil
}

// WithModel sets the model identifier sent with each request.
func WithModel(model string) Option {
	return func(a *LLMAgent) error {
		a.model = model
		return nil
	}
}

// WithDescription sets a human readable description.
func WithDescription(d string) Option {
	return func(a *LLMAgent) error {
		a.description = d
		return nil
	}
}

// WithInstruction sets the system instruction. It is a text/template
// rendered against the session state on every run.
func WithInstruction(text string) Option {
	return func(a *LLMAgent) error {
		a.instruction = text
		return nil
	}
}

// WithTools sets the tools the model may call.
func WithTools(r *tool.Registry) Option {
	return func(a *LLMAgent) error {
		a.tools = r
		return nil
	}
}

// WithOutputKey stores the final text in state under key.
func WithOutputKey(key string) Option {
	return func(a *LLMAgent) error {
		a.outputKey = key
		return nil
	}
}

// WithMaxIterations bounds the number of model calls per run.
func WithMaxIterations(n int) Option {
	return func(a *LLMAgent) error {
		if n <= 0 {
			return NewInvalidInputError("max iterations must be positive")
		}
		a.maxIterations = n
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *LLMAgent) error {
		a.temperature = t
		return nil
	}
}

// WithStreaming emits EventModelDelta events when the provider streams.
func WithStreaming(enabled bool) Option {
	return func(a *LLMAgent) error {
		a.streaming = enabled
		return nil
	}
}

// WithHistory shapes the session history included in each request. Without
// it the history is left out.
func WithHistory(s session.HistoryStrategy) Option {
	return func(a *LLMAgent) error {
		a.history = s
		return nil
	}
}

// WithRetriever adds knowledge base context for the user input.
func WithRetriever(r ContextRetriever, topK int) Option {
	return func(a *LLMAgent) error {
		a.retriever = r
		if topK > 0 {
			a.retrieveTopK = topK
		}
		return nil
	}
}

// WithMetrics records runs, tokens and errors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *LLMAgent) error {
		a.metrics = m
		return nil
	}
}

// WithLogger sets the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *LLMAgent) error {
		a.log = l
		return nil
	}
}

func (a *LLMAgent) Name() string        { return a.name }
func (a *LLMAgent) Description() string { return a.description }
func (a *LLMAgent) Model() string       { return a.model }
func (a *LLMAgent) OutputKey() string   { return a.outputKey }

// Run drives the model/tool loop for inv.
func (a *LLMAgent) Run(ctx context.Context, inv *Invocation) (err error) {
	ctx, span := a.tracer.Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(telemetry.AgentAttributes(a.name, a.model, a.maxIterations)...)
	if inv.Branch() != "" {
		span.SetAttributes(attribute.String(telemetry.AttrAgentBranch, inv.Branch()))
	}

	start := time.Now()
	log := a.log.With(core.LogAttrs(ctx)...).With(slog.String("agent", a.name))
	log.DebugContext(ctx, "agent.run.start", slog.String("branch", inv.Branch()))
	defer func() {
		a.metrics.RecordRun(ctx, a.name, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.metrics.RecordError(ctx, err, "agent")
			log.WarnContext(ctx, "agent.run.error",
				slog.String("code", string(kerrors.CodeOf(err))),
				slog.String("error", err.Error()))
			return
		}
		log.DebugContext(ctx, "agent.run.done", slog.Duration("elapsed", time.Since(start)))
	}()

	messages, err := a.buildMessages(ctx, inv)
	if err != nil {
		return err
	}
	req := llm.ChatRequest{
		Model:       a.model,
		Tools:       a.tools.Definitions(),
		Temperature: a.temperature,
	}

	for iter := 1; iter <= a.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return kerrors.Classify(err, "agent run cancelled")
		}
		req.Messages = messages
		resp, err := a.chat(ctx, inv, req, iter)
		if err != nil {
			return WrapLLMError(err, a.model)
		}

		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Content)
			inv.Emit(ctx, Event{Type: EventModelText, Agent: a.name, Text: text, Usage: &resp.Usage})
			if a.outputKey != "" {
				inv.State().Set(a.outputKey, text)
			}
			return nil
		}

		if resp.Content != "" {
			inv.Emit(ctx, Event{Type: EventModelText, Agent: a.name, Text: resp.Content})
		}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, a.callTool(ctx, inv, call))
		}
	}
	return WrapTimeoutError(a.name, a.maxIterations)
}

func (a *LLMAgent) buildMessages(ctx context.Context, inv *Invocation) ([]llm.Message, error) {
	var messages []llm.Message

	if a.instruction != "" {
		text, err := prompt.Expand(a.instruction, inv.State().Snapshot())
		if err != nil {
			return nil, err
		}
		if text = strings.TrimSpace(text); text != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: text})
		}
	}

	if a.retriever != nil && inv.UserInput != "" {
		text, err := a.retriever.SearchContext(ctx, inv.UserInput, a.retrieveTopK)
		switch {
		case err != nil:
			// Answer without context rather than fail the turn.
			a.metrics.RecordDegradation(ctx, "retrieval", err)
			a.log.WarnContext(ctx, "agent.retrieval.error",
				slog.String("agent", a.name),
				slog.String("code", string(kerrors.CodeOf(err))),
				slog.String("error", err.Error()))
		case text != "":
			messages = append(messages, llm.Message{
				Role:    llm.RoleSystem,
				Content: "Relevant context from the knowledge base:\n" + text,
			})
		}
	}

	if a.history != nil && len(inv.History) > 0 {
		messages = append(messages, session.ToLLM(a.history.Truncate(inv.History))...)
	}
	if inv.UserInput != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: inv.UserInput})
	}
	if len(messages) == 0 {
		return nil, NewInvalidInputError("agent " + a.name + " has neither instruction nor input")
	}
	return messages, nil
}

func (a *LLMAgent) chat(ctx context.Context, inv *Invocation, req llm.ChatRequest, iter int) (*llm.ChatResponse, error) {
	ctx, span := a.tracer.Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrLLMModel, a.model),
		attribute.Int(telemetry.AttrAgentIteration, iter),
	)

	var (
		resp *llm.ChatResponse
		err  error
	)
	if sp, ok := a.provider.(llm.StreamingProvider); ok && a.streaming {
		resp, err = a.stream(ctx, inv, sp, req)
	} else {
		resp, err = a.provider.Chat(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
		resp.FinishReason, len(resp.ToolCalls))...)
	a.metrics.RecordTokens(ctx, a.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (a *LLMAgent) stream(ctx context.Context, inv *Invocation, sp llm.StreamingProvider, req llm.ChatRequest) (*llm.ChatResponse, error) {
	chunks, err := sp.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	var (
		text strings.Builder
		resp llm.ChatResponse
	)
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, kerrors.Classify(chunk.Error, "model stream failed")
		}
		if chunk.Content != "" {
			text.WriteString(chunk.Content)
			inv.Emit(ctx, Event{Type: EventModelDelta, Agent: a.name, Text: chunk.Content})
		}
		if len(chunk.ToolCalls) > 0 {
			resp.ToolCalls = chunk.ToolCalls
		}
		if chunk.Usage != nil {
			resp.Usage.Add(*chunk.Usage)
		}
	}
	resp.Content = text.String()
	return &resp, nil
}

func (a *LLMAgent) callTool(ctx context.Context, inv *Invocation, call llm.ToolCall) llm.Message {
	tc := call
	inv.Emit(ctx, Event{Type: EventToolCall, Agent: a.name, ToolCall: &tc})

	res := a.tools.InvokeJSON(ctx, call.Function.Name, call.Function.Arguments)
	if res.IsError {
		a.metrics.RecordError(ctx, WrapToolError(res.Err, call.Function.Name, call.ID), "tool")
	}
	inv.Emit(ctx, Event{
		Type:  EventToolResult,
		Agent: a.name,
		ToolResult: &ToolResult{
			CallID:  call.ID,
			Name:    call.Function.Name,
			Output:  res.Output,
			IsError: res.IsError,
		},
	})
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    res.Output,
		ToolCallID: call.ID,
		Name:       call.Function.Name,
	}
}

var _ Agent = (*LLMAgent)(nil)
