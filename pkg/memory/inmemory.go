// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// InMemoryStore is a brute-force cosine VectorStore for tests and local runs.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	size   uint64
	points map[string]Point
	order  []string
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]*collection)}
}

// CreateCollection implements VectorStore. Creating an existing collection
// with the same size is a no-op.
func (s *InMemoryStore) CreateCollection(_ context.Context, name string, vectorSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.size != vectorSize {
			return errors.New(errors.CodeConflict, "collection exists with a different vector size", nil).
				WithContext("collection", name).
				WithContext("size", c.size)
		}
		return nil
	}
	s.collections[name] = &collection{size: vectorSize, points: make(map[string]Point)}
	return nil
}

// Upsert implements VectorStore.
func (s *InMemoryStore) Upsert(_ context.Context, name string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return errors.New(errors.CodeNotFound, "collection not found", nil).WithContext("collection", name)
	}
	for _, p := range points {
		if uint64(len(p.Vector)) != c.size {
			return errors.New(errors.CodeInvalidInput, "vector size mismatch", nil).
				WithContext("collection", name).
				WithContext("point", p.ID).
				WithContext("size", len(p.Vector))
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = clonePoint(p)
	}
	return nil
}

// Search implements VectorStore. Ties keep insertion order.
func (s *InMemoryStore) Search(_ context.Context, name string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "collection not found", nil).WithContext("collection", name)
	}
	if uint64(len(vector)) != c.size {
		return nil, errors.New(errors.CodeInvalidInput, "query vector size mismatch", nil).
			WithContext("collection", name)
	}

	results := make([]SearchResult, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		score := Cosine(vector, p.Vector)
		if score < scoreThreshold {
			continue
		}
		cp := clonePoint(p)
		cp.Vector = nil
		results = append(results, SearchResult{ID: id, Score: score, Point: cp})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Len returns the number of points in a collection.
func (s *InMemoryStore) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clonePoint(p Point) Point {
	out := p
	if p.Vector != nil {
		out.Vector = append([]float32(nil), p.Vector...)
	}
	if p.Payload != nil {
		out.Payload = make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

var _ VectorStore = (*InMemoryStore)(nil)
