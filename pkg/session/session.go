// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package session stores conversation sessions: a state map shared by the
// agents of one conversation plus the ordered message history.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
)

// ErrNotFound is returned, wrapped, when a session does not exist.
var ErrNotFound = kerrors.New(kerrors.CodeNotFound, "session not found", nil)

// Key identifies a session.
type Key struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Validate rejects keys with empty components.
func (k Key) Validate() error {
	switch {
	case k.AppName == "":
		return kerrors.New(kerrors.CodeInvalidInput, "app name is required", nil)
	case k.UserID == "":
		return kerrors.New(kerrors.CodeInvalidInput, "user id is required", nil)
	case k.SessionID == "":
		return kerrors.New(kerrors.CodeInvalidInput, "session id is required", nil)
	}
	return nil
}

func (k Key) String() string {
	return k.AppName + "/" + k.UserID + "/" + k.SessionID
}

// Message is one entry of the session history.
type Message struct {
	ID         string    `json:"id"`
	Role       llm.Role  `json:"role"`
	Author     string    `json:"author,omitempty"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is a snapshot of a stored session.
type Session struct {
	Key       Key            `json:"key"`
	State     map[string]any `json:"state"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store persists sessions. Every session returned is a copy owned by the
// caller.
//
// Durable stores keep state as JSON: integers come back as int64, other
// numbers as float64, and arrays as []any.
type Store interface {
	// Create creates the session with initialState. If the session already
	// exists it is returned unchanged and initialState is ignored.
	Create(ctx context.Context, key Key, initialState map[string]any) (*Session, error)
	// Get returns the session or an error wrapping ErrNotFound.
	Get(ctx context.Context, key Key) (*Session, error)
	// GetOrCreate returns the session, creating an empty one when missing.
	GetOrCreate(ctx context.Context, key Key) (*Session, error)
	// AppendMessages adds messages to the end of the history.
	AppendMessages(ctx context.Context, key Key, msgs ...Message) error
	// UpdateState merges delta into the state; the last writer wins per key.
	UpdateState(ctx context.Context, key Key, delta map[string]any) error
	// List returns the sessions of a user ordered by creation time.
	List(ctx context.Context, appName, userID string) ([]*Session, error)
	// Delete removes the session and its history.
	Delete(ctx context.Context, key Key) error
}

func notFound(key Key) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// prepare fills in missing message ids and timestamps.
func prepare(msgs []Message, now time.Time) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		out[i] = m
	}
	return out
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.State = CloneState(s.State)
	out.Messages = append([]Message(nil), s.Messages...)
	return &out
}

// CloneState deep-copies nested maps and slices of a state map. A nil map
// yields an empty one.
func CloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneState(val)
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = cloneValue(item)
		}
		return list
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
