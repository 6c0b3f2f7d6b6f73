// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// FunctionTool is a Tool backed by a typed Go function. Arguments are
// decoded from JSON into In; the schema is reflected from In.
type FunctionTool[In, Out any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, in In) (Out, error)
}

// NewFunctionTool builds a tool from fn. Struct fields use `json` tags for
// names and `jsonschema` tags for descriptions and constraints:
//
//	type WeatherArgs struct {
//	    City  string `json:"city" jsonschema:"description=City name"`
//	    Units string `json:"units,omitempty" jsonschema:"enum=celsius,enum=fahrenheit"`
//	}
func NewFunctionTool[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) *FunctionTool[In, Out] {
	return &FunctionTool[In, Out]{
		name:        name,
		description: description,
		schema:      ReflectSchema[In](),
		fn:          fn,
	}
}

// ReflectSchema returns the JSON Schema of T as a plain map.
func ReflectSchema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	var zero T
	schema := reflector.Reflect(&zero)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

func (t *FunctionTool[In, Out]) Name() string           { return t.name }
func (t *FunctionTool[In, Out]) Description() string    { return t.description }
func (t *FunctionTool[In, Out]) Schema() map[string]any { return t.schema }

// Call implements Tool.
func (t *FunctionTool[In, Out]) Call(ctx context.Context, args map[string]any) (any, error) {
	var in In
	if len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, kerrors.New(kerrors.CodeInvalidInput, "encode arguments", err)
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, kerrors.New(kerrors.CodeInvalidInput, "invalid arguments for "+t.name, err)
		}
	}
	return t.fn(ctx, in)
}
