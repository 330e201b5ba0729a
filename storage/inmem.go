package storage

import (
	"context"
	"sync"
)

// InMem is a Storage backed by a mutex-guarded map. Values do not survive the
// process; it's intended for tests and for embedders that supply their own
// persistence on top.
type InMem struct {
	mu sync.RWMutex
	m  map[string]string
}

// ensure that InMem implements the Storage interface
var _ Storage = (*InMem)(nil)

// NewInMem creates an empty in-memory store.
func NewInMem() *InMem {
	return &InMem{
		m: map[string]string{},
	}
}

// Get implements Storage.Get.
func (s *InMem) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Set implements Storage.Set.
func (s *InMem) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// Remove implements Storage.Remove.
func (s *InMem) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
