package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultRedactions masks the usual token-bearing keys.
var DefaultRedactions = []string{`(?i)token`, `(?i)secret`}

const masked = "***"

type redaction struct {
	next     ports.Storage
	patterns []*regexp.Regexp
}

// NewRedaction returns a middleware that masks the values of keys matching
// any of the given regexps before they reach the backend, including keys of
// nested records. Masking runs against a copy, never against the engine's
// live record. Reads are untouched.
func NewRedaction(patterns []string) Middleware {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return func(next ports.Storage) ports.Storage {
		return &redaction{next: next, patterns: compiled}
	}
}

func (m *redaction) Read(ctx context.Context, keys []string) (map[string]ports.Record, error) {
	return m.next.Read(ctx, keys)
}

func (m *redaction) Write(ctx context.Context, changes map[string]ports.Record) error {
	out := make(map[string]ports.Record, len(changes))
	for key, rec := range changes {
		clone := copyRecord(rec)
		m.mask(clone)
		out[key] = clone
	}
	return m.next.Write(ctx, out)
}

func (m *redaction) Delete(ctx context.Context, keys []string) error {
	return m.next.Delete(ctx, keys)
}

func (m *redaction) mask(rec map[string]any) {
	for k, v := range rec {
		if m.matches(k) {
			rec[k] = masked
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			m.mask(sub)
		}
	}
}

func (m *redaction) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// copyRecord clones nested maps; scalar values and slices are shared.
// Masking only ever replaces map entries, so shared values stay untouched.
func copyRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if sub, ok := v.(map[string]any); ok {
			out[k] = copyRecord(sub)
			continue
		}
		out[k] = v
	}
	return out
}
