// Package storage persists small JSON records in a key-value store. Missing
// keys are filled from caller-supplied defaults on read.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("storage: store is closed")

// Backend names accepted by Open
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store defines the key-value interface settings and quota state are kept in
type Store interface {
	// Get returns the stored values for keys. Absent keys are omitted.
	Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error)

	// Set writes every value in the partial record
	Set(ctx context.Context, values map[string]json.RawMessage) error

	// Close releases the store
	Close() error
}

// Open creates the store for backend at path
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendJSON, "":
		return NewJSONStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

// Load reads the record rec points to. rec must be a pointer to a struct that
// already holds the defaults; stored values replace them key by key. found
// reports whether any key was present in the store.
func Load(ctx context.Context, s Store, rec interface{}) (found bool, err error) {
	fields, err := toFields(rec)
	if err != nil {
		return false, err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	stored, err := s.Get(ctx, keys)
	if err != nil {
		return false, fmt.Errorf("failed to read record: %w", err)
	}
	if len(stored) == 0 {
		return false, nil
	}

	for k, v := range stored {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("failed to merge record: %w", err)
	}
	if err := json.Unmarshal(merged, rec); err != nil {
		return false, fmt.Errorf("failed to decode record: %w", err)
	}

	logger.Debugf("Loaded %d of %d keys from storage", len(stored), len(keys))
	return true, nil
}

// Save writes every field of rec, a struct or pointer to struct
func Save(ctx context.Context, s Store, rec interface{}) error {
	fields, err := toFields(rec)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, fields); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func toFields(rec interface{}) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("record is not an object: %w", err)
	}
	return fields, nil
}
