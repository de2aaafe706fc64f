package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore implements Store in process memory
type MemoryStore struct {
	data   map[string]json.RawMessage
	closed bool
	mutex  sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, keys []string) (map[string]json.RawMessage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

// Set implements Store
func (s *MemoryStore) Set(_ context.Context, values map[string]json.RawMessage) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrClosed
	}

	for k, v := range values {
		s.data[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}
