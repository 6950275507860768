package harvest

import "context"

// Engine is the capability contract every fetch strategy implements: fetch
// the configured source and extract raw candidate records. An empty slice
// with a nil error is a valid outcome, distinct from a whole-source failure.
type Engine interface {
	// Scrape fetches and extracts records for one source. Implementations
	// honor ctx for cancellation and the source's rate limit for pacing.
	Scrape(ctx context.Context, source SourceConfig) ([]RawGrantData, error)

	// Kind reports which EngineKind this implementation serves.
	Kind() EngineKind
}
