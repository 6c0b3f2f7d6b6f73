// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds request-scoped context helpers and component health
// checks shared by the runner, the server and the CLI.
package core

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type runIDKey struct{}
type identityKey struct{}

// Identity names the conversation a request belongs to.
type Identity struct {
	AppName   string
	UserID    string
	SessionID string
}

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id if present.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// EnsureRunID ensures a run id exists in the context.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := "run-" + uuid.NewString()
	return WithRunID(ctx, id), id
}

// WithIdentity attaches the conversation identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the conversation identity if present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// LogAttrs returns the run and identity attributes found in ctx, ready to
// pass to slog.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if id, ok := RunID(ctx); ok {
		attrs = append(attrs, slog.String("run_id", id))
	}
	if id, ok := IdentityFrom(ctx); ok {
		attrs = append(attrs,
			slog.String("app_name", id.AppName),
			slog.String("user_id", id.UserID),
			slog.String("session_id", id.SessionID),
		)
	}
	return attrs
}
