// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// Fallback produces a replacement value when a primary operation fails.
type Fallback[T any] interface {
	Execute(ctx context.Context, primaryErr error) (T, error)
}

// FallbackFunc adapts a function to Fallback.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// Execute implements Fallback.
func (f FallbackFunc[T]) Execute(ctx context.Context, err error) (T, error) {
	return f(ctx, err)
}

// StaticFallback always returns Value.
type StaticFallback[T any] struct {
	Value T
}

// Execute implements Fallback.
func (s StaticFallback[T]) Execute(context.Context, error) (T, error) {
	return s.Value, nil
}

// CachedFallback returns the last value stored with Remember.
type CachedFallback[T any] struct {
	mu    sync.RWMutex
	value T
	ok    bool
}

// Remember stores v as the last known good value.
func (c *CachedFallback[T]) Remember(v T) {
	c.mu.Lock()
	c.value, c.ok = v, true
	c.mu.Unlock()
}

// Execute implements Fallback.
func (c *CachedFallback[T]) Execute(_ context.Context, primaryErr error) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ok {
		var zero T
		return zero, errors.New(errors.CodeInternal, "no cached value available", primaryErr).
			WithContext("fallback", "cache")
	}
	return c.value, nil
}

// ChainedFallback tries each fallback in order until one succeeds.
type ChainedFallback[T any] struct {
	Fallbacks []Fallback[T]
}

// Execute implements Fallback.
func (c ChainedFallback[T]) Execute(ctx context.Context, primaryErr error) (T, error) {
	lastErr := primaryErr
	for _, fb := range c.Fallbacks {
		v, err := fb.Execute(ctx, lastErr)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	var zero T
	return zero, lastErr
}

// WithFallback runs fn and, on error, returns the fallback's value. The
// boolean reports whether the fallback was used.
func WithFallback[T any](ctx context.Context, fn func(ctx context.Context) (T, error), fb Fallback[T]) (T, bool, error) {
	v, err := fn(ctx)
	if err == nil {
		return v, false, nil
	}
	v, err = fb.Execute(ctx, err)
	return v, true, err
}
