// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// Metrics holds the instruments recorded by agents, tools and retrieval.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	toolCalls     metric.Int64Counter
	toolDuration  metric.Float64Histogram
	tokens        metric.Int64Counter
	errorsTotal   metric.Int64Counter
	degradations  metric.Int64Counter
	retrievalRows metric.Int64Histogram
}

// NewMetrics creates the instruments on meter, or on the global meter
// provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(TracerName)
	}
	m := &Metrics{}
	var err error
	if m.runs, err = meter.Int64Counter("vxagent.agent.runs",
		metric.WithDescription("Agent runs by agent and outcome")); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("vxagent.agent.run.duration",
		metric.WithDescription("Agent run latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter("vxagent.tool.calls",
		metric.WithDescription("Tool invocations by tool and outcome")); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram("vxagent.tool.duration",
		metric.WithDescription("Tool invocation latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.tokens, err = meter.Int64Counter("vxagent.llm.tokens",
		metric.WithDescription("Model tokens by direction")); err != nil {
		return nil, err
	}
	if m.errorsTotal, err = meter.Int64Counter("vxagent.errors.total",
		metric.WithDescription("Errors by code and component")); err != nil {
		return nil, err
	}
	if m.degradations, err = meter.Int64Counter("vxagent.degradations.total",
		metric.WithDescription("Failures replaced by default or partial results")); err != nil {
		return nil, err
	}
	if m.retrievalRows, err = meter.Int64Histogram("vxagent.retrieval.rows",
		metric.WithDescription("Rows returned by merged retrieval")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun records one agent run.
func (m *Metrics) RecordRun(ctx context.Context, agent string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrAgentName, agent),
		attribute.Bool("success", err == nil),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordTool records one tool invocation.
func (m *Metrics) RecordTool(ctx context.Context, tool string, elapsed time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.Bool(AttrToolSuccess, success),
	)
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordTokens records model token usage.
func (m *Metrics) RecordTokens(ctx context.Context, model string, input, output int) {
	if m == nil {
		return
	}
	m.tokens.Add(ctx, int64(input), metric.WithAttributes(
		attribute.String(AttrLLMModel, model), attribute.String("direction", "input")))
	m.tokens.Add(ctx, int64(output), metric.WithAttributes(
		attribute.String(AttrLLMModel, model), attribute.String("direction", "output")))
}

// RecordError counts err under its code for component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	e := errors.As(err)
	m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, string(e.Code)),
		attribute.String(AttrComponent, component),
		attribute.String(AttrErrorRecoverable, e.RecoverableString()),
	))
}

// RecordDegradation counts a failure that was replaced by a default.
func (m *Metrics) RecordDegradation(ctx context.Context, component string, err error) {
	if m == nil {
		return
	}
	m.degradations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrComponent, component),
		attribute.String(AttrErrorCode, string(errors.CodeOf(err))),
	))
}

// RecordRetrieval records the number of merged rows for a search.
func (m *Metrics) RecordRetrieval(ctx context.Context, rows int) {
	if m == nil {
		return
	}
	m.retrievalRows.Record(ctx, int64(rows))
}
