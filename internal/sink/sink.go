// Package sink is the output boundary: harvested records leave the core
// through a RecordSink. The core guarantees nothing about idempotent
// storage; the Postgres sink upserts, the memory sink appends.
package sink

import (
	"context"

	"github.com/grantscope/harvester/internal/harvest"
)

// RecordSink receives harvested records.
type RecordSink interface {
	// Store persists a batch. Implementations must tolerate an empty batch.
	Store(ctx context.Context, records []harvest.RawGrantData) error
	// Close releases the sink's resources.
	Close()
}

// Discard drops every record. Useful for dry runs.
type Discard struct{}

// Store implements RecordSink.
func (Discard) Store(context.Context, []harvest.RawGrantData) error { return nil }

// Close implements RecordSink.
func (Discard) Close() {}
