// Package adapter pairs one source configuration with its engines and layers
// the domain post-processing a raw scrape still needs: language detection,
// region extraction, currency conversion, category inference, and
// deduplication.
package adapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
)

// Adapter owns one source and the engines that can harvest it. Engines are
// tried in order; any engine failing is logged and contributes nothing, it
// never fails the harvest as a whole.
type Adapter struct {
	source  harvest.SourceConfig
	engines []harvest.Engine
	logger  *zap.Logger
	now     func() time.Time
}

// New builds an adapter. At least one engine is required.
func New(source harvest.SourceConfig, engines []harvest.Engine, logger *zap.Logger) (*Adapter, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("adapter for %s needs at least one engine", source.ID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{source: source, engines: engines, logger: logger, now: time.Now}, nil
}

// Source returns the configuration this adapter harvests.
func (a *Adapter) Source() harvest.SourceConfig { return a.source }

// Harvest runs every engine, post-processes, and dedupes. The returned error
// is non-nil only when every engine failed and nothing was harvested.
func (a *Adapter) Harvest(ctx context.Context) ([]harvest.RawGrantData, error) {
	var (
		collected []harvest.RawGrantData
		lastErr   error
		failures  int
	)
	for _, engine := range a.engines {
		records, err := engine.Scrape(ctx, a.source)
		if err != nil {
			failures++
			lastErr = err
			a.logger.Warn("engine failed, continuing with remaining engines",
				zap.String("source", a.source.ID),
				zap.String("engine", string(engine.Kind())),
				zap.Error(err))
			continue
		}
		collected = append(collected, records...)
	}
	if failures == len(a.engines) && len(collected) == 0 {
		return nil, harvest.NewSourceError(a.source, fmt.Errorf("all engines failed: %w", lastErr))
	}

	now := a.now()
	out := collected[:0]
	for _, record := range collected {
		if !record.Valid(now) {
			a.logger.Warn("dropping invalid record",
				zap.String("source", a.source.ID), zap.String("title", record.Title))
			continue
		}
		enrich(&record)
		out = append(out, record)
	}
	out = Dedupe(out)

	a.logger.Info("adapter harvest complete",
		zap.String("source", a.source.ID),
		zap.Int("records", len(out)),
		zap.Int("engine_failures", failures))
	return out, nil
}
