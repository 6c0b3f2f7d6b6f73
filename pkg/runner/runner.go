// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes a root agent against a persisted session and
// streams the run's events.
package runner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/core"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
)

// DefaultBuffer is the capacity of the event channel returned by Run.
const DefaultBuffer = 64

// RunRequest is one user turn. An empty SessionID starts a new session.
type RunRequest struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Result is what RunSync collects from a run.
type Result struct {
	SessionID string        `json:"session_id"`
	Response  string        `json:"response"`
	Events    []agent.Event `json:"events"`
}

// Runner owns the root agent and the session store.
type Runner struct {
	root     agent.Agent
	sessions session.Store
	buffer   int
	metrics  *telemetry.Metrics
	log      *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithBuffer sets the event channel capacity.
func WithBuffer(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// WithMetrics records failed runs.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// New creates a Runner.
func New(root agent.Agent, sessions session.Store, opts ...Option) (*Runner, error) {
	if root == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "runner needs a root agent", nil)
	}
	if sessions == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "runner needs a session store", nil)
	}
	r := &Runner{root: root, sessions: sessions, buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = telemetry.Component(slog.Default(), "runner")
	}
	r.tracer = otel.Tracer(telemetry.TracerName)
	return r, nil
}

// Root returns the root agent.
func (r *Runner) Root() agent.Agent { return r.root }

// Sessions returns the session store.
func (r *Runner) Sessions() session.Store { return r.sessions }

// Run records the user message and starts the root agent. The returned
// channel carries the run's events and is closed after a terminal event
// (EventFinal or EventError without a branch). Errors returned directly are
// request or storage errors; agent failures arrive as events.
func (r *Runner) Run(ctx context.Context, req RunRequest) (<-chan agent.Event, error) {
	if req.SessionID == "" {
		req.SessionID = "sess-" + uuid.NewString()
	}
	key := session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "message is required", nil)
	}

	ctx, runID := core.EnsureRunID(ctx)
	ctx = core.WithIdentity(ctx, core.Identity{AppName: key.AppName, UserID: key.UserID, SessionID: key.SessionID})

	sess, err := r.sessions.GetOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}
	userMsg := session.Message{Role: llm.RoleUser, Author: "user", Content: req.Message}
	if err := r.sessions.AppendMessages(ctx, key, userMsg); err != nil {
		return nil, err
	}

	events := make(chan agent.Event, r.buffer)
	em := &channelEmitter{ch: events}
	inv := agent.NewInvocation(sess, req.Message, em)
	inv.ID = runID

	go r.execute(ctx, inv, em, events)
	return events, nil
}

func (r *Runner) execute(ctx context.Context, inv *agent.Invocation, em *channelEmitter, events chan agent.Event) {
	defer close(events)

	ctx, span := r.tracer.Start(ctx, "runner.run")
	defer span.End()
	span.SetAttributes(telemetry.SessionAttributes(inv.Key.AppName, inv.Key.UserID, inv.Key.SessionID)...)

	log := r.log.With(core.LogAttrs(ctx)...)
	start := time.Now()
	log.InfoContext(ctx, "runner.run.start", slog.String("agent", r.root.Name()))

	runErr := r.root.Run(ctx, inv)

	// Persist whatever the run produced, even when it failed or was cancelled.
	store := context.WithoutCancel(ctx)
	final := em.finalText()
	if err := r.persist(store, inv, final); err != nil && runErr == nil {
		runErr = err
	}

	var last agent.Event
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		r.metrics.RecordError(ctx, runErr, "runner")
		log.ErrorContext(ctx, "runner.run.error",
			slog.String("code", string(kerrors.CodeOf(runErr))),
			slog.String("error", runErr.Error()),
			slog.Duration("elapsed", time.Since(start)))
		last = agent.ErrorEvent(r.root.Name(), runErr)
	} else {
		log.InfoContext(ctx, "runner.run.complete", slog.Duration("elapsed", time.Since(start)))
		last = agent.Event{Type: agent.EventFinal, Agent: r.root.Name(), Text: final}
	}
	last.Timestamp = time.Now().UTC()

	select {
	case events <- last:
	case <-ctx.Done():
		// Nobody is listening anymore; try once without blocking.
		select {
		case events <- last:
		default:
		}
	}
}

func (r *Runner) persist(ctx context.Context, inv *agent.Invocation, final string) error {
	if delta := inv.State().Delta(); len(delta) > 0 {
		if err := r.sessions.UpdateState(ctx, inv.Key, delta); err != nil {
			return err
		}
	}
	if final == "" {
		return nil
	}
	return r.sessions.AppendMessages(ctx, inv.Key, session.Message{
		Role:    llm.RoleAssistant,
		Author:  r.root.Name(),
		Content: final,
	})
}

// RunSync runs req to completion and returns the final text along with
// every event. A failed run returns the partial result and the run error.
func (r *Runner) RunSync(ctx context.Context, req RunRequest) (*Result, error) {
	if req.SessionID == "" {
		req.SessionID = "sess-" + uuid.NewString()
	}
	events, err := r.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{SessionID: req.SessionID}
	var runErr error
	for ev := range events {
		res.Events = append(res.Events, ev)
		if !ev.Terminal() {
			continue
		}
		if ev.Type == agent.EventFinal {
			res.Response = ev.Text
			continue
		}
		runErr = ev.Err
		if runErr == nil {
			runErr = kerrors.New(kerrors.ErrorCode(ev.ErrorCode), ev.Error, nil)
		}
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = kerrors.Classify(ctx.Err(), "run cancelled")
	}
	return res, runErr
}
