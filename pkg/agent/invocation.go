// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
)

// State is the session state shared by the agents of one run. Writes are
// recorded so the runner can persist only what changed.
type State struct {
	mu     sync.RWMutex
	values map[string]any
	delta  map[string]any
}

// NewState copies initial into a new State.
func NewState(initial map[string]any) *State {
	return &State{values: session.CloneState(initial), delta: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (s *State) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set stores value under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.delta[key] = value
}

// Snapshot returns a copy of all values.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return session.CloneState(s.values)
}

// Delta returns a copy of the values written since creation.
func (s *State) Delta() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return session.CloneState(s.delta)
}

// Invocation carries one run through a tree of agents.
type Invocation struct {
	ID        string
	Key       session.Key
	UserInput string
	History   []session.Message

	state   *State
	emitter Emitter
	branch  string
}

// NewInvocation starts a run over a session snapshot. A nil emitter drops
// events.
func NewInvocation(sess *session.Session, input string, emitter Emitter) *Invocation {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	inv := &Invocation{
		ID:        "inv-" + uuid.NewString(),
		UserInput: input,
		emitter:   emitter,
	}
	if sess != nil {
		inv.Key = sess.Key
		inv.History = sess.Messages
		inv.state = NewState(sess.State)
	} else {
		inv.state = NewState(nil)
	}
	return inv
}

// State returns the shared state.
func (inv *Invocation) State() *State { return inv.state }

// Branch names the parallel branch this invocation runs in, if any.
func (inv *Invocation) Branch() string { return inv.branch }

// Emit stamps and forwards an event.
func (inv *Invocation) Emit(ctx context.Context, ev Event) {
	if ev.Branch == "" {
		ev.Branch = inv.branch
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	inv.emitter.Emit(ctx, ev)
}

// forBranch returns a view of inv whose events are tagged with name. State
// stays shared.
func (inv *Invocation) forBranch(name string) *Invocation {
	child := *inv
	if child.branch != "" {
		name = child.branch + "/" + name
	}
	child.branch = name
	return &child
}
