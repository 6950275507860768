package sink

import (
	"context"
	"sync"

	"github.com/grantscope/harvester/internal/harvest"
)

// Memory keeps records in process memory. Primarily for tests and one-shot
// runs that print their results.
type Memory struct {
	mu      sync.Mutex
	records []harvest.RawGrantData
}

// NewMemory builds an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Store implements RecordSink.
func (m *Memory) Store(_ context.Context, records []harvest.RawGrantData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

// Records returns a copy of everything stored so far.
func (m *Memory) Records() []harvest.RawGrantData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]harvest.RawGrantData, len(m.records))
	copy(out, m.records)
	return out
}

// Close implements RecordSink.
func (m *Memory) Close() {}
