// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
)

// EventType identifies what an Event carries.
type EventType string

const (
	// EventModelDelta is a streamed text fragment.
	EventModelDelta EventType = "model.delta"
	// EventModelText is a complete text reply of one agent.
	EventModelText EventType = "model.text"
	// EventToolCall is a tool call requested by the model.
	EventToolCall EventType = "tool.call"
	// EventToolResult is the outcome of a tool call.
	EventToolResult EventType = "tool.result"
	// EventFinal ends a run with its final text.
	EventFinal EventType = "final"
	// EventError reports a failure. Without a Branch it ends the run.
	EventError EventType = "error"
)

// Event is one step of a run as seen by the caller.
type Event struct {
	Type       EventType     `json:"type"`
	Agent      string        `json:"agent,omitempty"`
	Branch     string        `json:"branch,omitempty"`
	Text       string        `json:"text,omitempty"`
	ToolCall   *llm.ToolCall `json:"tool_call,omitempty"`
	ToolResult *ToolResult   `json:"tool_result,omitempty"`
	Usage      *llm.Usage    `json:"usage,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	Err        error         `json:"-"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ToolResult is the payload of EventToolResult.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventFinal || (e.Type == EventError && e.Branch == "")
}

// ErrorEvent builds an EventError carrying err's kind.
func ErrorEvent(agent string, err error) Event {
	return Event{
		Type:      EventError,
		Agent:     agent,
		Error:     err.Error(),
		ErrorCode: string(kerrors.CodeOf(err)),
		Err:       err,
	}
}

// Emitter receives events.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoopEmitter drops every event.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(context.Context, Event) {}
