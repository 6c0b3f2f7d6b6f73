// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps sessions in process memory. Sessions are never
// evicted.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
	now      func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[Key]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create implements Store.
func (s *InMemoryStore) Create(_ context.Context, key Key, initialState map[string]any) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[key]; ok {
		return existing.Clone(), nil
	}
	now := s.now()
	sess := &Session{
		Key:       key,
		State:     CloneState(initialState),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[key] = sess
	return sess.Clone(), nil
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, key Key) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, notFound(key)
	}
	return sess.Clone(), nil
}

// GetOrCreate implements Store.
func (s *InMemoryStore) GetOrCreate(ctx context.Context, key Key) (*Session, error) {
	return s.Create(ctx, key, nil)
}

// AppendMessages implements Store.
func (s *InMemoryStore) AppendMessages(_ context.Context, key Key, msgs ...Message) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return notFound(key)
	}
	now := s.now()
	sess.Messages = append(sess.Messages, prepare(msgs, now)...)
	sess.UpdatedAt = now
	return nil
}

// UpdateState implements Store.
func (s *InMemoryStore) UpdateState(_ context.Context, key Key, delta map[string]any) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return notFound(key)
	}
	for k, v := range CloneState(delta) {
		sess.State[k] = v
	}
	sess.UpdatedAt = s.now()
	return nil
}

// List implements Store.
func (s *InMemoryStore) List(_ context.Context, appName, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for k, sess := range s.sessions {
		if k.AppName == appName && k.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key.SessionID < out[j].Key.SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; !ok {
		return notFound(key)
	}
	delete(s.sessions, key)
	return nil
}

var _ Store = (*InMemoryStore)(nil)
