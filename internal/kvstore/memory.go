package kvstore

import (
	"context"
	"sync"

	"github.com/congo-pay/tontine/internal/namespace"
)

type memoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates a concurrency-safe in-memory store useful for tests and
// local development.
func NewMemory() Store {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Read(_ context.Context, ns namespace.Namespace, field string) (string, bool, error) {
	if ns.IsZero() {
		return "", false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[ns.Key(field)]
	return v, ok, nil
}

func (s *memoryStore) Write(_ context.Context, ns namespace.Namespace, field, value string) error {
	if ns.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[ns.Key(field)] = value
	return nil
}

func (s *memoryStore) WriteMany(_ context.Context, ns namespace.Namespace, values map[string]string) error {
	if ns.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for field, value := range values {
		s.values[ns.Key(field)] = value
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, ns namespace.Namespace, fields ...string) error {
	if ns.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, field := range fields {
		delete(s.values, ns.Key(field))
	}
	return nil
}

func (s *memoryStore) Update(_ context.Context, ns namespace.Namespace, fields []string, fn UpdateFunc) error {
	if ns.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current := make(map[string]string, len(fields))
	for _, field := range fields {
		if v, ok := s.values[ns.Key(field)]; ok {
			current[field] = v
		}
	}
	m, err := fn(current)
	if err != nil {
		return err
	}
	for _, field := range m.Delete {
		delete(s.values, ns.Key(field))
	}
	for field, value := range m.Set {
		s.values[ns.Key(field)] = value
	}
	return nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}
