// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// WithTimeout runs fn with a derived context that expires after d. If fn
// does not return in time a recoverable CodeTimeout error is returned; fn
// keeps running in the background until it observes the cancelled context.
// A zero duration runs fn directly.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, timeoutErr(ctx, d)
	case res := <-done:
		// fn may have returned because the deadline fired.
		if res.err != nil && ctx.Err() != nil {
			return res.value, timeoutErr(ctx, d)
		}
		return res.value, res.err
	}
}

func timeoutErr(ctx context.Context, d time.Duration) error {
	if ctx.Err() == context.Canceled {
		return errors.Classify(ctx.Err(), "operation cancelled")
	}
	return errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
		WithContext("timeout", d.String()).
		WithRecoverable(true)
}
