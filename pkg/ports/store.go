package ports

import "context"

// Record is one persisted state document. Values must survive a JSON round
// trip; typed views are decoded by the callers that know the shape.
type Record = map[string]any

// Storage defines the interface for persisting keyed state records.
// This allows for durable conversations, enabling "Stop & Resume" turns.
//
// Records are read and written wholesale: there is no partial update and no
// merge. The last writer wins.
type Storage interface {
	// Read retrieves the records for the given keys. Keys with no stored
	// record are simply absent from the result; that is not an error.
	Read(ctx context.Context, keys []string) (map[string]Record, error)

	// Write upserts every record in changes under its key.
	Write(ctx context.Context, changes map[string]Record) error

	// Delete removes the records for the given keys. Missing keys are
	// ignored.
	Delete(ctx context.Context, keys []string) error
}
