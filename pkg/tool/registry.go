// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
)

// ErrDuplicateTool is returned, wrapped, when a name is registered twice.
var ErrDuplicateTool = kerrors.New(kerrors.CodeConflict, "duplicate tool", nil)

// Result is the outcome of an invocation. Output is what the model sees.
type Result struct {
	Name    string
	Output  string
	Value   any
	IsError bool
	// Err keeps the typed failure for logging and metrics.
	Err error
}

// Registry is an ordered set of tools addressed by canonical name.
type Registry struct {
	mu      sync.RWMutex
	tools   []Tool
	index   map[string]int
	timeout time.Duration
	metrics *telemetry.Metrics
	log     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCallTimeout bounds every tool call.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithMetrics records tool latency and outcome.
func WithMetrics(m *telemetry.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = telemetry.Component(slog.Default(), "tool")
	}
	return r
}

// Register adds tools in order. The batch is all or nothing: if any name is
// empty or collides after canonicalization, with a registered tool or with
// another tool of the batch, nothing is added.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name()) == "" {
			return kerrors.New(kerrors.CodeInvalidInput, "tool name is required", nil)
		}
		key := Canonical(t.Name())
		_, registered := r.index[key]
		_, repeated := seen[key]
		if registered || repeated {
			return fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name())
		}
		seen[key] = struct{}{}
	}
	for _, t := range tools {
		r.index[Canonical(t.Name())] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(tools ...Tool) *Registry {
	if err := r.Register(tools...); err != nil {
		panic(err)
	}
	return r
}

// Get looks a tool up by any spelling of its canonical name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[Canonical(name)]
	if !ok {
		return nil, false
	}
	return r.tools[i], true
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the declarations to send with a model request.
func (r *Registry) Definitions() []llm.Tool {
	if r == nil {
		return nil
	}
	tools := r.Tools()
	out := make([]llm.Tool, len(tools))
	for i, t := range tools {
		out[i] = Definition(t)
	}
	return out
}

// InvokeJSON decodes model-provided JSON arguments and invokes the tool.
func (r *Registry) InvokeJSON(ctx context.Context, name, arguments string) Result {
	args := map[string]any{}
	if s := strings.TrimSpace(arguments); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return errorResult(name, kerrors.New(kerrors.CodeInvalidInput, "arguments are not a JSON object", err))
		}
	}
	return r.Invoke(ctx, name, args)
}

// Invoke runs the named tool. It never panics and never returns an error:
// an unknown tool, a failed call or a panicking tool all produce a Result
// with IsError set and an "Error: ..." output.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (res Result) {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "tool.invoke")
	defer span.End()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res = errorResult(name, kerrors.New(kerrors.CodeToolFailure, fmt.Sprintf("tool panicked: %v", p), nil))
		}
		span.SetAttributes(telemetry.ToolAttributes(name, "", !res.IsError)...)
		if res.IsError {
			span.SetStatus(codes.Error, res.Output)
			r.log.WarnContext(ctx, "tool.invoke.error",
				slog.String("tool", name),
				slog.String("code", string(kerrors.CodeOf(res.Err))),
				slog.String("error", errString(res.Err)),
			)
		}
		r.metrics.RecordTool(ctx, name, time.Since(start), !res.IsError)
	}()

	t, ok := r.Get(name)
	if !ok {
		return errorResult(name, kerrors.New(kerrors.CodeNotFound, "unknown tool "+name, nil).WithContext("tool", name))
	}
	if args == nil {
		args = map[string]any{}
	}

	var (
		value any
		err   error
	)
	if r.timeout > 0 {
		value, err = resilience.WithTimeout(ctx, r.timeout, func(ctx context.Context) (any, error) {
			return safeCall(ctx, t, args)
		})
	} else {
		value, err = safeCall(ctx, t, args)
	}
	if err != nil {
		return errorResult(t.Name(), err)
	}

	out, err := Render(value)
	if err != nil {
		return errorResult(t.Name(), kerrors.New(kerrors.CodeToolFailure, "encode tool output", err))
	}
	return Result{Name: t.Name(), Output: out, Value: value}
}

// Render turns a tool value into model-readable text: strings as-is,
// everything else as JSON.
func Render(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// safeCall turns a panic inside the tool into an error. The timeout path
// runs the call on another goroutine, out of reach of Invoke's recover.
func safeCall(ctx context.Context, t Tool, args map[string]any) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = kerrors.New(kerrors.CodeToolFailure, fmt.Sprintf("tool panicked: %v", p), nil)
		}
	}()
	return t.Call(ctx, args)
}

func errorResult(name string, err error) Result {
	return Result{
		Name:    name,
		Output:  "Error: " + message(err),
		IsError: true,
		Err:     err,
	}
}

// message returns the text shown to the model, without the error code prefix.
func message(err error) string {
	if ke, ok := err.(*kerrors.Error); ok {
		if ke.Err != nil {
			return ke.Message + ": " + ke.Err.Error()
		}
		return ke.Message
	}
	return err.Error()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
