// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package research builds a peer comparison report for a stock ticker:
// a discovery agent names competitors, one analyst per company runs in
// parallel, and an aggregator merges their notes.
package research

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/prompt"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// State keys written by the pipeline.
const (
	KeyTicker      = "ticker"
	KeyDiscovery   = "discovery_raw"
	KeyPeers       = "peers"
	KeyFinalReport = "final_report"
	AnalysisPrefix = "analysis_"
)

// AnalysisKey is the state key of one analyst's note.
func AnalysisKey(ticker string) string { return AnalysisPrefix + ticker }

// Pipeline is an agent that runs the whole report flow.
type Pipeline struct {
	name           string
	provider       llm.Provider
	model          string
	prompts        *prompt.Store
	tools          *tool.Registry
	maxConcurrency int
	metrics        *telemetry.Metrics
	log            *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithModel sets the model used by every step.
func WithModel(model string) Option { return func(p *Pipeline) { p.model = model } }

// WithPrompts replaces the built-in prompt store.
func WithPrompts(s *prompt.Store) Option { return func(p *Pipeline) { p.prompts = s } }

// WithTools gives the analysts tools.
func WithTools(r *tool.Registry) Option { return func(p *Pipeline) { p.tools = r } }

// WithMaxConcurrency bounds how many analysts run at once.
func WithMaxConcurrency(n int) Option { return func(p *Pipeline) { p.maxConcurrency = n } }

// WithMetrics records runs and degradations.
func WithMetrics(m *telemetry.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

// New creates the pipeline.
func New(provider llm.Provider, opts ...Option) (*Pipeline, error) {
	if provider == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "research pipeline needs a model provider", nil)
	}
	p := &Pipeline{name: "research", provider: provider}
	for _, opt := range opts {
		opt(p)
	}
	if p.prompts == nil {
		p.prompts = prompt.NewStore()
	}
	if p.log == nil {
		p.log = telemetry.Component(slog.Default(), "research")
	}
	return p, nil
}

func (p *Pipeline) Name() string      { return p.name }
func (p *Pipeline) OutputKey() string { return KeyFinalReport }

// Run reads the ticker from the user input, or from state when the input is
// blank, and writes the report to KeyFinalReport.
func (p *Pipeline) Run(ctx context.Context, inv *agent.Invocation) error {
	raw := inv.UserInput
	if strings.TrimSpace(raw) == "" {
		raw = inv.State().GetString(KeyTicker)
	}
	primary, ok := NormalizeTicker(raw)
	if !ok {
		return agent.NewInvalidInputError("invalid ticker symbol: " + raw)
	}
	inv.State().Set(KeyTicker, primary)

	peers, err := p.discover(ctx, inv)
	if err != nil {
		return err
	}
	inv.State().Set(KeyPeers, peers)

	companies := []string{primary}
	for _, t := range peers {
		if t != primary {
			companies = append(companies, t)
		}
	}
	analysts := make([]agent.Agent, 0, len(companies))
	for _, t := range companies {
		a, err := p.analyst(t)
		if err != nil {
			return err
		}
		analysts = append(analysts, a)
	}
	aggregator, err := p.step("aggregator", prompt.Aggregator, nil, KeyFinalReport)
	if err != nil {
		return err
	}

	flow := agent.NewSequential(p.name,
		agent.NewParallel("analysts", analysts,
			agent.WithMaxConcurrency(p.maxConcurrency),
			agent.WithParallelMetrics(p.metrics),
			agent.WithParallelLogger(p.log)),
		aggregator,
	)
	return flow.Run(ctx, inv)
}

// discover asks for competitors. A failed model call degrades to the
// default peer list, as does an unusable answer.
func (p *Pipeline) discover(ctx context.Context, inv *agent.Invocation) ([]string, error) {
	d, err := p.step("discovery", prompt.Discovery, nil, KeyDiscovery)
	if err != nil {
		return nil, err
	}
	inv.State().Set(KeyDiscovery, "")
	if err := d.Run(ctx, inv); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		p.metrics.RecordDegradation(ctx, "research.discovery", err)
		p.log.WarnContext(ctx, "research.discovery.failed",
			slog.String("code", string(kerrors.CodeOf(err))),
			slog.String("error", err.Error()))
	}
	peers, fallback := ParsePeers(inv.State().GetString(KeyDiscovery))
	if fallback {
		p.log.InfoContext(ctx, "research.discovery.fallback", slog.Any("peers", peers))
	}
	return peers, nil
}

func (p *Pipeline) analyst(ticker string) (*agent.LLMAgent, error) {
	instruction, err := p.prompts.Render(prompt.Analyst, map[string]any{KeyTicker: ticker})
	if err != nil {
		return nil, err
	}
	return agent.New(ticker, p.provider,
		agent.WithModel(p.model),
		agent.WithInstruction(instruction),
		agent.WithTools(p.tools),
		agent.WithOutputKey(AnalysisKey(ticker)),
		agent.WithMetrics(p.metrics),
		agent.WithLogger(p.log),
	)
}

func (p *Pipeline) step(name, promptName string, tools *tool.Registry, outputKey string) (*agent.LLMAgent, error) {
	pr, err := p.prompts.Get(promptName)
	if err != nil {
		return nil, err
	}
	return agent.New(name, p.provider,
		agent.WithModel(p.model),
		agent.WithInstruction(pr.Text),
		agent.WithTools(tools),
		agent.WithOutputKey(outputKey),
		agent.WithMetrics(p.metrics),
		agent.WithLogger(p.log),
	)
}

var _ agent.Agent = (*Pipeline)(nil)
