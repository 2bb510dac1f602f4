package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/ports/portstest"
)

func newBackend(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStore_Contract(t *testing.T) {
	portstest.RunStorageContract(t, func(t *testing.T) ports.Storage {
		_, client := newBackend(t)
		return redis.NewFromClient(client)
	})
}

func TestStore_TTLExpiry(t *testing.T) {
	mr, client := newBackend(t)
	store := redis.NewFromClient(client, redis.WithTTL(250*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]ports.Record{
		"conversations/abc": {"turn": float64(1)},
	}))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "conversations/abc")

	mr.FastForward(300 * time.Millisecond)

	got, err := store.Read(ctx, []string{"conversations/abc"})
	require.NoError(t, err)
	assert.Empty(t, got, "expired records should read as absent")

	// The index prunes against the real clock, so wait out the TTL before
	// asserting the lazy cleanup.
	time.Sleep(300 * time.Millisecond)

	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_Prefix(t *testing.T) {
	mr, client := newBackend(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]ports.Record{
		"conversations/abc": {"turn": float64(1)},
	}))

	assert.True(t, mr.Exists("custom:app:conversations/abc"))
	assert.True(t, mr.Exists("custom:app:index"))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"conversations/abc"}, keys)
}

func TestStore_DeletePrunesIndex(t *testing.T) {
	_, client := newBackend(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]ports.Record{
		"conversations/abc": {"turn": float64(1)},
		"users/u1":          {"name": "ada"},
	}))
	require.NoError(t, store.Delete(ctx, []string{"conversations/abc"}))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users/u1"}, keys)
}

func TestStore_New(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redis.New(mr.Addr(), "", 0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]ports.Record{
		"conversations/abc": {"greeting": "hello"},
	}))

	got, err := store.Read(ctx, []string{"conversations/abc"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got["conversations/abc"]["greeting"])
}
