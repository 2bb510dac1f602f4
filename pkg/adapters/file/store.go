// Package file provides a ports.Storage implementation backed by the local
// filesystem. Each record is one JSON file written atomically, giving durable
// conversations on a single host without a database.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultDir is where records land when no directory is configured.
const DefaultDir = ".arbor/state"

const ext = ".json"

// tmpPrefix marks in-flight writes; Keys skips them.
const tmpPrefix = "tmp-"

// Store implements ports.Storage on a directory of JSON files. State keys
// are percent-encoded into the file names, so the slashes and separators
// inside keys are safe on every platform. Safe for concurrent use within one
// process; coordinating several processes needs a Locker.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// New creates a Store rooted at dir. An empty dir falls back to DefaultDir.
// The directory is created on first write.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the directory records are stored under.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+ext)
}

// Read retrieves the records for the given keys. Keys with no file are
// absent from the result.
func (s *Store) Read(ctx context.Context, keys []string) (map[string]ports.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ports.Record, len(keys))
	for _, key := range keys {
		raw, err := os.ReadFile(s.path(key))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("file: reading record %q: %w", key, err)
		}
		var rec ports.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("file: decoding record %q: %w", key, err)
		}
		out[key] = rec
	}
	return out, nil
}

// Write upserts every record, one atomic file replace per key. Data goes
// through a temp file in the same directory, an fsync and a rename, so a
// crash never leaves a half-written record behind.
func (s *Store) Write(ctx context.Context, changes map[string]ports.Record) error {
	if len(changes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("file: creating state directory: %w", err)
	}
	for key, rec := range changes {
		raw, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("file: encoding record %q: %w", key, err)
		}
		if err := s.replace(s.path(key), raw); err != nil {
			return fmt.Errorf("file: writing record %q: %w", key, err)
		}
	}
	return nil
}

// replace writes data next to dest and renames it into place. The temp file
// lives in the same directory so the rename never crosses filesystems.
func (s *Store) replace(dest string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, tmpPrefix+"*"+ext)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	// Windows cannot rename an open file.
	if err := tmp.Close(); err != nil {
		return err
	}
	// Nor rename over an existing one.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	return os.Rename(tmpPath, dest)
}

// Delete removes the records for the given keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("file: deleting record %q: %w", key, err)
		}
	}
	return nil
}

// Keys returns the stored keys, decoded back from the file names. Intended
// for diagnostics and admin tooling. A missing directory is an empty store.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file: listing records: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tmpPrefix) || filepath.Ext(name) != ext {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
