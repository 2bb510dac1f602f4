package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

type taggingStore struct {
	ports.Storage
	tag   string
	order *[]string
}

func (s *taggingStore) Write(ctx context.Context, changes map[string]ports.Record) error {
	*s.order = append(*s.order, s.tag)
	return s.Storage.Write(ctx, changes)
}

func tagging(tag string, order *[]string) middleware.Middleware {
	return func(next ports.Storage) ports.Storage {
		return &taggingStore{Storage: next, tag: tag, order: order}
	}
}

func TestChain_FirstListedIsOutermost(t *testing.T) {
	var order []string
	store := middleware.Chain(
		tagging("outer", &order),
		tagging("inner", &order),
	)(memory.NewStore())

	require.NoError(t, store.Write(context.Background(), map[string]ports.Record{
		"conversations/abc": {"step": float64(1)},
	}))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestChain_ComposesBehaviors(t *testing.T) {
	backing := memory.NewStore()
	store := middleware.Chain(
		middleware.NewRedaction(middleware.DefaultRedactions),
		middleware.NewEncryption(newKey(t)),
	)(backing)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]ports.Record{
		"users/u1": {"accessToken": "tok-123", "name": "ada"},
	}))

	// The backend holds an encrypted envelope; decrypting through the chain
	// reveals the redacted record.
	raw, err := backing.Read(ctx, []string{"users/u1"})
	require.NoError(t, err)
	assert.Contains(t, raw["users/u1"], "__cipher__")

	got, err := store.Read(ctx, []string{"users/u1"})
	require.NoError(t, err)
	assert.Equal(t, "***", got["users/u1"]["accessToken"])
	assert.Equal(t, "ada", got["users/u1"]["name"])
}
