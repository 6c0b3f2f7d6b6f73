// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool defines callable capabilities offered to the model and a
// registry that invokes them by name. Invocation never fails: errors come
// back as "Error: ..." text the model can read.
package tool

import (
	"context"
	"strings"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
)

// Tool is a named capability with a JSON Schema for its arguments.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema object describing the arguments.
	Schema() map[string]any
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Canonical normalizes a tool name for lookups: trimmed, lower-cased, with
// dashes, dots and spaces turned into underscores.
func Canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', ' ':
			return '_'
		}
		return r
	}, name)
}

// Definition converts a tool into the declaration sent to the model.
func Definition(t Tool) llm.Tool {
	schema := t.Schema()
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schema,
		},
	}
}

// Func adapts a plain function with a hand-written schema into a Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Parameters      map[string]any
	Fn              func(ctx context.Context, args map[string]any) (any, error)
}

func (f *Func) Name() string           { return f.ToolName }
func (f *Func) Description() string    { return f.ToolDescription }
func (f *Func) Schema() map[string]any { return f.Parameters }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}
