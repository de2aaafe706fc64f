package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore implements Store using a single JSON file
type JSONStore struct {
	filePath string
	data     map[string]json.RawMessage
	closed   bool
	mutex    sync.RWMutex
}

// NewJSONStore creates a JSONStore, loading the file when it exists
func NewJSONStore(filePath string) (*JSONStore, error) {
	store := &JSONStore{
		filePath: filePath,
		data:     make(map[string]json.RawMessage),
	}

	// Try to load existing data
	if _, err := os.Stat(filePath); err == nil {
		if err := store.loadExistingData(); err != nil {
			return nil, fmt.Errorf("failed to load existing data: %w", err)
		}
	}

	return store, nil
}

// Get implements Store
func (s *JSONStore) Get(_ context.Context, keys []string) (map[string]json.RawMessage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set implements Store
func (s *JSONStore) Set(_ context.Context, values map[string]json.RawMessage) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrClosed
	}

	for k, v := range values {
		s.data[k] = v
	}
	return s.saveToFile()
}

// Close implements Store
func (s *JSONStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

// loadExistingData loads existing data from the JSON file
func (s *JSONStore) loadExistingData() error {
	file, err := os.Open(s.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &s.data)
}

// saveToFile writes to a temporary file and renames it over the target
func (s *JSONStore) saveToFile() error {
	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := s.filePath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, s.filePath)
}
