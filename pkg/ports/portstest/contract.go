// Package portstest provides a reusable contract test for ports.Storage
// implementations. Every adapter runs it against a fresh instance so that
// read/write/delete semantics stay identical across backends.
package portstest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/ports"
)

// RunStorageContract exercises the Storage semantics the engine relies on.
// factory must return an empty store.
func RunStorageContract(t *testing.T, factory func(t *testing.T) ports.Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("read missing keys yields no entries", func(t *testing.T) {
		store := factory(t)
		got, err := store.Read(ctx, []string{"absent/one", "absent/two"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("write then read round trips", func(t *testing.T) {
		store := factory(t)
		err := store.Write(ctx, map[string]ports.Record{
			"conv/alpha": {"counter": float64(3), "nested": map[string]any{"k": "v"}},
			"conv/beta":  {"flag": true},
		})
		require.NoError(t, err)

		got, err := store.Read(ctx, []string{"conv/alpha", "conv/beta", "conv/gamma"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, float64(3), got["conv/alpha"]["counter"])
		assert.Equal(t, map[string]any{"k": "v"}, got["conv/alpha"]["nested"])
		assert.Equal(t, true, got["conv/beta"]["flag"])
	})

	t.Run("write overwrites wholesale", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Write(ctx, map[string]ports.Record{"conv/a": {"old": "value", "keep": "no"}}))
		require.NoError(t, store.Write(ctx, map[string]ports.Record{"conv/a": {"new": "value"}}))

		got, err := store.Read(ctx, []string{"conv/a"})
		require.NoError(t, err)
		require.Contains(t, got, "conv/a")
		assert.Equal(t, ports.Record{"new": "value"}, got["conv/a"])
	})

	t.Run("stored records do not alias caller maps", func(t *testing.T) {
		store := factory(t)
		rec := ports.Record{"k": "original"}
		require.NoError(t, store.Write(ctx, map[string]ports.Record{"conv/a": rec}))
		rec["k"] = "mutated"

		got, err := store.Read(ctx, []string{"conv/a"})
		require.NoError(t, err)
		assert.Equal(t, "original", got["conv/a"]["k"])

		got["conv/a"]["k"] = "mutated again"
		again, err := store.Read(ctx, []string{"conv/a"})
		require.NoError(t, err)
		assert.Equal(t, "original", again["conv/a"]["k"])
	})

	t.Run("delete removes and tolerates missing", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Write(ctx, map[string]ports.Record{"conv/a": {"k": "v"}}))
		require.NoError(t, store.Delete(ctx, []string{"conv/a", "conv/never-existed"}))

		got, err := store.Read(ctx, []string{"conv/a"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty batches are no-ops", func(t *testing.T) {
		store := factory(t)
		got, err := store.Read(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		require.NoError(t, store.Write(ctx, nil))
		require.NoError(t, store.Delete(ctx, nil))
	})
}
