package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/retry"
	"github.com/grantscope/harvester/internal/sink"
)

// Harvester is the adapter-side contract the runner drives.
type Harvester interface {
	Source() harvest.SourceConfig
	Harvest(ctx context.Context) ([]harvest.RawGrantData, error)
}

// SourceResult is the per-source outcome of one run. Err carries the typed
// error for callers; Error is its string form for the report endpoint.
type SourceResult struct {
	SourceID string        `json:"source_id"`
	Records  int           `json:"records"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// RunReport aggregates a whole run.
type RunReport struct {
	RunID        string         `json:"run_id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Results      []SourceResult `json:"results"`
	TotalRecords int            `json:"total_records"`
}

// Failed counts sources that produced an error.
func (r RunReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Runner harvests many sources concurrently. One source failing never stops
// the others; its error lands in the report instead.
type Runner struct {
	session     *Session
	out         sink.RecordSink
	concurrency int
	now         func() time.Time
}

// NewRunner builds a runner. concurrency <= 0 means one source at a time.
func NewRunner(s *Session, out sink.RecordSink, concurrency int) *Runner {
	if out == nil {
		out = sink.Discard{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{session: s, out: out, concurrency: concurrency, now: time.Now}
}

// Run harvests every adapter and stores the results. The returned error is
// non-nil only when the run context was canceled; per-source failures are
// reported, not raised.
func (r *Runner) Run(ctx context.Context, adapters []Harvester) (RunReport, error) {
	report := RunReport{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		Results:   make([]SourceResult, len(adapters)),
	}
	logger := r.session.Logger().With(zap.String("run_id", report.RunID))
	logger.Info("harvest run starting", zap.Int("sources", len(adapters)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			report.Results[i] = r.harvestOne(gctx, a, logger)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = r.now()
	for _, res := range report.Results {
		report.TotalRecords += res.Records
	}
	logger.Info("harvest run finished",
		zap.Int("records", report.TotalRecords),
		zap.Int("failed_sources", report.Failed()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, ctx.Err()
}

// harvestOne runs a single adapter behind the session's circuit breaker and
// stores its records.
func (r *Runner) harvestOne(ctx context.Context, a Harvester, logger *zap.Logger) SourceResult {
	source := a.Source()
	result := SourceResult{SourceID: source.ID}

	m := r.session.Metrics()
	m.HarvestStarted()
	defer m.HarvestFinished()

	start := r.now()
	records, _, err := retry.DoWithBreaker(ctx, r.session.Breakers(), source.ID,
		func(ctx context.Context) ([]harvest.RawGrantData, error) {
			return a.Harvest(ctx)
		},
		retry.Options{MaxRetries: 0},
		r.session.BreakerConfig(),
	)
	result.Duration = r.now().Sub(start)

	if err != nil {
		result.Err = err
		result.Error = err.Error()
		m.ObserveHarvest(source.URL, "failed", 0, result.Duration)
		logger.Warn("source harvest failed",
			zap.String("source", source.ID), zap.Error(err))
		return result
	}

	if err := r.out.Store(ctx, records); err != nil {
		result.Err = err
		result.Error = err.Error()
		m.ObserveHarvest(source.URL, "sink_failed", len(records), result.Duration)
		logger.Error("storing harvested records failed",
			zap.String("source", source.ID), zap.Error(err))
		return result
	}

	result.Records = len(records)
	m.ObserveHarvest(source.URL, "ok", len(records), result.Duration)
	logger.Info("source harvested",
		zap.String("source", source.ID),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", result.Duration))
	return result
}
