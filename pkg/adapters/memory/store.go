// Package memory provides an in-memory ports.Storage implementation.
// It is the default backend for tests, examples and single-process runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
)

// Store implements ports.Storage in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Read retrieves the records for the given keys. Records round-trip through
// JSON so callers never alias stored data, same as a real backend.
func (s *Store) Read(ctx context.Context, keys []string) (map[string]ports.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ports.Record, len(keys))
	for _, key := range keys {
		raw, ok := s.data[key]
		if !ok {
			continue
		}
		var rec ports.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("memory: decoding record %q: %w", key, err)
		}
		out[key] = rec
	}
	return out, nil
}

// Write upserts the given records.
func (s *Store) Write(ctx context.Context, changes map[string]ports.Record) error {
	encoded := make(map[string][]byte, len(changes))
	for key, rec := range changes {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("memory: encoding record %q: %w", key, err)
		}
		encoded[key] = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, raw := range encoded {
		s.data[key] = raw
	}
	return nil
}

// Delete removes the records for the given keys.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// Keys returns the stored keys. Intended for tests and debugging.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	return keys, nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
