package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/turn"
)

// ErrBadReference indicates the inbound activity lacks the addressing fields
// a store key needs (channel id, conversation id or user id).
var ErrBadReference = errors.New("state: activity missing addressing fields")

// KeyFunc derives the storage key for a turn.
type KeyFunc func(t *turn.Context) (string, error)

// Store persists one record per storage key, wholesale. It is stateless by
// itself; all per-turn data lives in the turn context's cache, so one Store
// can serve any number of concurrent conversations.
type Store struct {
	name    string
	storage ports.Storage
	keyFor  KeyFunc
}

// NewStore builds a store with a custom key derivation.
func NewStore(storage ports.Storage, name string, keyFor KeyFunc) *Store {
	return &Store{name: name, storage: storage, keyFor: keyFor}
}

// NewConversationState builds the store for conversation-scoped state,
// keyed {channelID}/conversations/{conversationID}.
func NewConversationState(storage ports.Storage) *Store {
	return NewStore(storage, "ConversationState", func(t *turn.Context) (string, error) {
		a := t.Activity()
		if a == nil || a.ChannelID == "" || a.ConversationID() == "" {
			return "", fmt.Errorf("conversation key: %w", ErrBadReference)
		}
		return a.ChannelID + "/conversations/" + a.ConversationID(), nil
	})
}

// NewUserState builds the store for user-scoped state,
// keyed {channelID}/users/{userID}.
func NewUserState(storage ports.Storage) *Store {
	return NewStore(storage, "UserState", func(t *turn.Context) (string, error) {
		a := t.Activity()
		if a == nil || a.ChannelID == "" || a.FromID() == "" {
			return "", fmt.Errorf("user key: %w", ErrBadReference)
		}
		return a.ChannelID + "/users/" + a.FromID(), nil
	})
}

// Name identifies the store in errors and logs.
func (s *Store) Name() string {
	return s.name
}

// cache envelope keys inside the turn's state cache.
const (
	cacheStateKey = "state"
	cacheHashKey  = "hash"
)

// Load reads the record into the turn cache. A second Load in the same turn
// is a no-op unless force is set. Missing records hydrate as empty.
func (s *Store) Load(ctx context.Context, t *turn.Context, force bool) error {
	key, err := s.keyFor(t)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	if _, ok := t.CachedState(key); ok && !force {
		return nil
	}

	records, err := s.storage.Read(ctx, []string{key})
	if err != nil {
		return fmt.Errorf("%s: loading %q: %w", s.name, key, err)
	}
	rec := records[key]
	if rec == nil {
		rec = make(ports.Record)
	}
	t.SetCachedState(key, ports.Record{
		cacheStateKey: rec,
		cacheHashKey:  changeHash(rec),
	})
	return nil
}

// Save writes the cached record back when it changed since Load, or always
// when force is set. Without a prior Load (or property access) it is a no-op.
func (s *Store) Save(ctx context.Context, t *turn.Context, force bool) error {
	key, err := s.keyFor(t)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	entry, ok := t.CachedState(key)
	if !ok {
		return nil
	}
	rec, _ := entry[cacheStateKey].(ports.Record)
	if rec == nil {
		return nil
	}

	hash := changeHash(rec)
	if !force && hash == entry[cacheHashKey] {
		return nil
	}
	if err := s.storage.Write(ctx, map[string]ports.Record{key: rec}); err != nil {
		return fmt.Errorf("%s: saving %q: %w", s.name, key, err)
	}
	entry[cacheHashKey] = hash
	return nil
}

// Clear empties the cached record. The next Save persists the empty record.
func (s *Store) Clear(ctx context.Context, t *turn.Context) error {
	key, err := s.keyFor(t)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	hash := ""
	if entry, ok := t.CachedState(key); ok {
		hash, _ = entry[cacheHashKey].(string)
	}
	t.SetCachedState(key, ports.Record{
		cacheStateKey: make(ports.Record),
		cacheHashKey:  hash,
	})
	return nil
}

// Delete removes the record from storage and from the turn cache.
func (s *Store) Delete(ctx context.Context, t *turn.Context) error {
	key, err := s.keyFor(t)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	t.ClearCachedState(key)
	if err := s.storage.Delete(ctx, []string{key}); err != nil {
		return fmt.Errorf("%s: deleting %q: %w", s.name, key, err)
	}
	return nil
}

// record returns the live cached record, loading it first if needed.
// Mutations to the returned map are picked up by Save.
func (s *Store) record(ctx context.Context, t *turn.Context) (ports.Record, error) {
	key, err := s.keyFor(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	if _, ok := t.CachedState(key); !ok {
		if err := s.Load(ctx, t, false); err != nil {
			return nil, err
		}
	}
	entry, _ := t.CachedState(key)
	rec, _ := entry[cacheStateKey].(ports.Record)
	if rec == nil {
		rec = make(ports.Record)
		entry[cacheStateKey] = rec
	}
	return rec, nil
}

// changeHash fingerprints a record via its JSON encoding. encoding/json
// sorts map keys, so equal content always hashes equal.
func changeHash(rec ports.Record) string {
	raw, err := json.Marshal(rec)
	if err != nil {
		// Unencodable state will fail Save anyway; make sure it looks dirty.
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return fmt.Sprintf("%x", h.Sum64())
}
