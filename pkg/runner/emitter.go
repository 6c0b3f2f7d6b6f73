// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"sync"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
)

// channelEmitter forwards events to the run channel and remembers the last
// top level model text, which becomes the run's answer.
type channelEmitter struct {
	ch chan<- agent.Event

	mu       sync.Mutex
	rootText string
	anyText  string
}

func (e *channelEmitter) Emit(ctx context.Context, ev agent.Event) {
	if ev.Type == agent.EventModelText && ev.Text != "" {
		e.mu.Lock()
		if ev.Branch == "" {
			e.rootText = ev.Text
		}
		e.anyText = ev.Text
		e.mu.Unlock()
	}
	select {
	case e.ch <- ev:
	case <-ctx.Done():
	}
}

func (e *channelEmitter) finalText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rootText != "" {
		return e.rootText
	}
	return e.anyText
}
