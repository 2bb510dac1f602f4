// Package redis provides a Redis-backed ports.Storage implementation for
// durable conversations that survive process restarts, plus a distributed
// locker for hosts running multiple replicas against the same database.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "arbor:state:"

// farFuture is the index score for records that never expire (year 2100,
// unix milliseconds).
const farFuture = 4102444800000

// Store implements ports.Storage using Redis. Records are stored as JSON
// strings under prefixed keys, and a sorted-set index scored by expiry keeps
// Keys listable without a SCAN.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets an expiration on every written record. Zero (the default)
// means records never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Store connected to the given address.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Store on top of an existing client. Useful when
// the host shares one client between the store and a Locker.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Read fetches the records for the given keys in a single MGET. Keys with
// no stored record are absent from the result.
func (s *Store) Read(ctx context.Context, keys []string) (map[string]ports.Record, error) {
	if len(keys) == 0 {
		return map[string]ports.Record{}, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	values, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: reading records: %w", err)
	}

	out := make(map[string]ports.Record, len(keys))
	for i, value := range values {
		if value == nil {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("redis: unexpected value type %T for key %q", value, keys[i])
		}
		var rec ports.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("redis: decoding record %q: %w", keys[i], err)
		}
		out[keys[i]] = rec
	}
	return out, nil
}

// Write upserts every record in one pipeline. Each write also refreshes the
// record's entry in the expiry index.
func (s *Store) Write(ctx context.Context, changes map[string]ports.Record) error {
	if len(changes) == 0 {
		return nil
	}

	score := float64(farFuture)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).UnixMilli())
	}

	pipe := s.client.Pipeline()
	for k, rec := range changes {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("redis: encoding record %q: %w", k, err)
		}
		pipe.Set(ctx, s.key(k), raw, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: k})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: writing records: %w", err)
	}
	return nil
}

// Delete removes the records for the given keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
		members[i] = k
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, prefixed...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: deleting records: %w", err)
	}
	return nil
}

// Keys returns the stored keys, lazily pruning index entries whose records
// have expired. Intended for diagnostics and admin tooling.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", now).Err(); err != nil {
		return nil, fmt.Errorf("redis: pruning expired index entries: %w", err)
	}

	keys, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: listing keys: %w", err)
	}
	return keys, nil
}

// Close releases the underlying client connection.
func (s *Store) Close() error {
	return s.client.Close()
}
