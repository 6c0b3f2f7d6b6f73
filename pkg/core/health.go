// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	// HealthHealthy indicates the component is fully operational.
	HealthHealthy HealthStatus = "HEALTHY"

	// HealthDegraded indicates the component works with reduced capacity.
	HealthDegraded HealthStatus = "DEGRADED"

	// HealthUnhealthy indicates the component is not operational.
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// HealthResult represents the result of a health check.
type HealthResult struct {
	Status    HealthStatus `json:"status"`
	Component string       `json:"component"`
	Message   string       `json:"message,omitempty"`
	LastCheck time.Time    `json:"last_check"`
	Error     error        `json:"-"`
}

// HealthChecker checks the health of a component.
type HealthChecker interface {
	Check(ctx context.Context) HealthResult
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) HealthResult

// Check implements HealthChecker.
func (f HealthCheckerFunc) Check(ctx context.Context) HealthResult {
	r := f(ctx)
	if r.LastCheck.IsZero() {
		r.LastCheck = time.Now()
	}
	return r
}

// PingChecker reports healthy when ping succeeds and unhealthy otherwise.
func PingChecker(ping func(ctx context.Context) error) HealthChecker {
	return HealthCheckerFunc(func(ctx context.Context) HealthResult {
		if err := ping(ctx); err != nil {
			return HealthResult{Status: HealthUnhealthy, Message: err.Error(), Error: err}
		}
		return HealthResult{Status: HealthHealthy}
	})
}

// StaticChecker always reports status with message.
func StaticChecker(status HealthStatus, message string) HealthChecker {
	return HealthCheckerFunc(func(context.Context) HealthResult {
		return HealthResult{Status: status, Message: message}
	})
}

// HealthRegistry runs registered checkers and caches their results.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	cache    map[string]HealthResult
	cacheTTL time.Duration
	timeout  time.Duration
}

// NewHealthRegistry creates a registry. A zero cacheTTL disables caching.
func NewHealthRegistry(cacheTTL time.Duration) *HealthRegistry {
	return &HealthRegistry{
		checkers: make(map[string]HealthChecker),
		cache:    make(map[string]HealthResult),
		cacheTTL: cacheTTL,
		timeout:  5 * time.Second,
	}
}

// Register registers a checker for a component, replacing any previous one.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
	delete(r.cache, name)
}

// Check runs the checker for one component.
func (r *HealthRegistry) Check(ctx context.Context, name string) (HealthResult, error) {
	r.mu.RLock()
	checker, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return HealthResult{}, errors.New(errors.CodeNotFound, "health checker not registered", nil).
			WithContext("component", name)
	}
	return r.run(ctx, name, checker), nil
}

// CheckAll runs every checker concurrently. Results are sorted by component
// name; the overall status is the worst individual status.
func (r *HealthRegistry) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	checkers := make([]HealthChecker, 0, len(r.checkers))
	for name, c := range r.checkers {
		names = append(names, name)
		checkers = append(checkers, c)
	}
	r.mu.RUnlock()

	results := make([]HealthResult, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.run(ctx, names[i], checkers[i])
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Component < results[j].Component })

	overall := HealthHealthy
	for _, res := range results {
		switch res.Status {
		case HealthUnhealthy:
			overall = HealthUnhealthy
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}
	return results, overall
}

func (r *HealthRegistry) run(ctx context.Context, name string, checker HealthChecker) HealthResult {
	if r.cacheTTL > 0 {
		r.mu.RLock()
		cached, ok := r.cache[name]
		r.mu.RUnlock()
		if ok && time.Since(cached.LastCheck) < r.cacheTTL {
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res := checker.Check(ctx)
	res.Component = name
	if res.LastCheck.IsZero() {
		res.LastCheck = time.Now()
	}

	if r.cacheTTL > 0 {
		r.mu.Lock()
		r.cache[name] = res
		r.mu.Unlock()
	}
	return res
}
