// Package cache is the dashboard's query cache: REST responses keyed by the
// same scopes the sync engine invalidates. The engine never reads from it; it
// only calls Invalidate, and consumers refetching a dropped scope go back to
// the server.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/simdeck/simdeck/pkg/live"
)

// FetchFunc loads a value for a scope from the origin.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	value     any
	fetchedAt time.Time
}

// Store is a thread-safe scope-keyed cache. The zero value is ready to use.
type Store struct {
	mu      sync.RWMutex
	once    sync.Once
	entries map[string]entry
}

var _ live.Invalidator = (*Store)(nil)

func (s *Store) init() {
	s.once.Do(func() {
		s.entries = make(map[string]entry)
	})
}

// Get returns the cached value for scope and whether it was present.
func (s *Store) Get(scope live.Scope) (any, bool) {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[scope.Key()]
	return e.value, ok
}

// GetOr returns the cached value for scope, fetching and storing it on a
// miss. Concurrent callers may fetch the same scope twice; the last write
// wins, which is harmless for idempotent reads.
func (s *Store) GetOr(ctx context.Context, scope live.Scope, fetch FetchFunc) (any, error) {
	if v, ok := s.Get(scope); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.Set(scope, v)
	return v, nil
}

// Set stores a value under scope.
func (s *Store) Set(scope live.Scope, value any) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[scope.Key()] = entry{value: value, fetchedAt: time.Now()}
}

// Invalidate drops the entry for scope. A summary scope (no sub-resource)
// also drops every sub-resource entry under the same simulation, because a
// lifecycle transition stales everything derived from it.
func (s *Store) Invalidate(scope live.Scope) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, scope.Key())

	if scope.Resource == "" {
		prefix := scope.Key() + "/"
		for k := range s.entries {
			if len(k) > len(prefix) && k[:len(prefix)] == prefix {
				delete(s.entries, k)
			}
		}
	}
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
