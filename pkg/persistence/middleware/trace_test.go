package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

func TestTrace_LogsMergePatch(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := middleware.NewTrace(logger)(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]ports.Record{
		"conversations/abc": {"step": float64(1), "name": "ada"},
	}))
	assert.Contains(t, buf.String(), "record written")
	assert.Contains(t, buf.String(), "conversations/abc")

	// The second write drops name, so the merge patch nulls it out and
	// carries the new step value. The text handler escapes the inner quotes.
	buf.Reset()
	require.NoError(t, store.Write(ctx, map[string]ports.Record{
		"conversations/abc": {"step": float64(2)},
	}))
	out := buf.String()
	assert.Contains(t, out, `\"step\":2`)
	assert.Contains(t, out, `\"name\":null`)
	assert.NotContains(t, out, "ada")
}

func TestTrace_LogsDeletes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := middleware.NewTrace(logger)(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]ports.Record{"users/u1": {"plan": "pro"}}))
	buf.Reset()
	require.NoError(t, store.Delete(ctx, []string{"users/u1"}))
	assert.Contains(t, buf.String(), "record deleted")
	assert.Contains(t, buf.String(), "users/u1")
}

func TestTrace_SilentAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store := middleware.NewTrace(logger)(memory.NewStore())

	require.NoError(t, store.Write(context.Background(), map[string]ports.Record{
		"users/u1": {"plan": "pro"},
	}))
	assert.Empty(t, buf.String())
}
