package middleware

import (
	"context"
	"encoding/json"
	"log/slog"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/aretw0/arbor/pkg/ports"
)

type trace struct {
	next   ports.Storage
	logger *slog.Logger
}

// NewTrace returns a middleware that logs an RFC 7386 merge patch of every
// written record at Debug, old versus new, and every deleted key. Handy
// while developing dialogs; when Debug is disabled the middleware adds no
// reads.
func NewTrace(logger *slog.Logger) Middleware {
	return func(next ports.Storage) ports.Storage {
		return &trace{next: next, logger: logger}
	}
}

func (m *trace) Read(ctx context.Context, keys []string) (map[string]ports.Record, error) {
	return m.next.Read(ctx, keys)
}

func (m *trace) Write(ctx context.Context, changes map[string]ports.Record) error {
	if m.logger.Enabled(ctx, slog.LevelDebug) {
		m.logChanges(ctx, changes)
	}
	return m.next.Write(ctx, changes)
}

func (m *trace) Delete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		m.logger.DebugContext(ctx, "record deleted", "key", key)
	}
	return m.next.Delete(ctx, keys)
}

func (m *trace) logChanges(ctx context.Context, changes map[string]ports.Record) {
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}

	before, err := m.next.Read(ctx, keys)
	if err != nil {
		m.logger.DebugContext(ctx, "trace read failed", "err", err)
		return
	}

	for _, key := range keys {
		oldJSON := []byte("{}")
		if rec, ok := before[key]; ok {
			raw, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			oldJSON = raw
		}
		newJSON, err := json.Marshal(changes[key])
		if err != nil {
			continue
		}
		patch, err := jsonpatch.CreateMergePatch(oldJSON, newJSON)
		if err != nil {
			m.logger.DebugContext(ctx, "trace diff failed", "key", key, "err", err)
			continue
		}
		m.logger.DebugContext(ctx, "record written", "key", key, "patch", string(patch))
	}
}
