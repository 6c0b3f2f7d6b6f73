// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
)

// SequentialAgent runs its children one after another over the same state.
type SequentialAgent struct {
	name     string
	children []Agent
}

// NewSequential composes children in order.
func NewSequential(name string, children ...Agent) *SequentialAgent {
	return &SequentialAgent{name: name, children: children}
}

func (s *SequentialAgent) Name() string { return s.name }

// Children returns the composed agents.
func (s *SequentialAgent) Children() []Agent { return append([]Agent(nil), s.children...) }

// Run stops at the first failing child and returns its error. State
// written by earlier children is kept.
func (s *SequentialAgent) Run(ctx context.Context, inv *Invocation) error {
	for _, child := range s.children {
		if err := ctx.Err(); err != nil {
			return kerrors.Classify(err, "sequence cancelled")
		}
		if err := child.Run(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

// ParallelAgent runs its children concurrently over the same state. A
// failing branch never fails the group: the failure is reported as a branch
// EventError and the branch's output key is set to the empty string, so
// later steps see every key.
type ParallelAgent struct {
	name           string
	children       []Agent
	maxConcurrency int
	metrics        *telemetry.Metrics
	log            *slog.Logger
}

// ParallelOption configures a ParallelAgent.
type ParallelOption func(*ParallelAgent)

// WithMaxConcurrency bounds how many branches run at once.
func WithMaxConcurrency(n int) ParallelOption {
	return func(p *ParallelAgent) { p.maxConcurrency = n }
}

// WithParallelMetrics records branch degradations.
func WithParallelMetrics(m *telemetry.Metrics) ParallelOption {
	return func(p *ParallelAgent) { p.metrics = m }
}

// WithParallelLogger sets the logger for branch failures.
func WithParallelLogger(l *slog.Logger) ParallelOption {
	return func(p *ParallelAgent) { p.log = l }
}

// NewParallel composes children to run concurrently.
func NewParallel(name string, children []Agent, opts ...ParallelOption) *ParallelAgent {
	p := &ParallelAgent{name: name, children: children}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = telemetry.Component(slog.Default(), "agent")
	}
	return p
}

func (p *ParallelAgent) Name() string { return p.name }

// Children returns the composed agents.
func (p *ParallelAgent) Children() []Agent { return append([]Agent(nil), p.children...) }

// Run waits for every branch. It only fails when ctx is done.
func (p *ParallelAgent) Run(ctx context.Context, inv *Invocation) error {
	var sem chan struct{}
	if p.maxConcurrency > 0 {
		sem = make(chan struct{}, p.maxConcurrency)
	}

	var wg sync.WaitGroup
	for _, child := range p.children {
		wg.Add(1)
		go func(child Agent) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					p.degrade(ctx, inv, child, kerrors.Classify(ctx.Err(), "branch not started"))
					return
				}
			}
			if err := p.runBranch(ctx, inv.forBranch(child.Name()), child); err != nil {
				p.degrade(ctx, inv, child, err)
			}
		}(child)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return kerrors.Classify(err, "parallel run cancelled")
	}
	return nil
}

func (p *ParallelAgent) runBranch(ctx context.Context, inv *Invocation, child Agent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kerrors.New(kerrors.CodeInternal, fmt.Sprintf("branch panicked: %v", r), nil).
				WithContext("agent", child.Name())
		}
	}()
	return child.Run(ctx, inv)
}

func (p *ParallelAgent) degrade(ctx context.Context, inv *Invocation, child Agent, err error) {
	p.log.WarnContext(ctx, "agent.parallel.branch_failed",
		slog.String("group", p.name),
		slog.String("branch", child.Name()),
		slog.String("code", string(kerrors.CodeOf(err))),
		slog.String("error", err.Error()),
	)
	p.metrics.RecordDegradation(ctx, "agent.parallel", err)

	if k, isKeyer := child.(OutputKeyer); isKeyer && k.OutputKey() != "" {
		inv.State().Set(k.OutputKey(), "")
	}
	ev := ErrorEvent(child.Name(), err)
	inv.forBranch(child.Name()).Emit(ctx, ev)
}

var (
	_ Agent = (*SequentialAgent)(nil)
	_ Agent = (*ParallelAgent)(nil)
)
