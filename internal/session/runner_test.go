package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/retry"
	"github.com/grantscope/harvester/internal/sink"
)

type fakeAdapter struct {
	id      string
	records []harvest.RawGrantData
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Source() harvest.SourceConfig {
	return harvest.SourceConfig{ID: f.id, URL: "https://" + f.id + ".example.org", Engine: harvest.EngineStatic}
}

func (f *fakeAdapter) Harvest(ctx context.Context) ([]harvest.RawGrantData, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.records, f.err
}

func records(n int) []harvest.RawGrantData {
	out := make([]harvest.RawGrantData, n)
	for i := range out {
		out[i] = harvest.RawGrantData{
			Title:      "Grant",
			FunderName: harvest.UnknownFunder,
			SourceURL:  "https://example.org",
			ScrapedAt:  time.Now().Add(-time.Minute),
		}
	}
	return out
}

func TestRunIsolatesSourceFailure(t *testing.T) {
	s := New(Config{}, zap.NewNop())
	defer s.Close()

	out := sink.NewMemory()
	runner := NewRunner(s, out, 4)

	good := &fakeAdapter{id: "good", records: records(3)}
	bad := &fakeAdapter{id: "bad", err: errors.New("navigation froze")}

	report, err := runner.Run(context.Background(), []Harvester{good, bad})
	require.NoError(t, err, "one failing source must not fail the run")

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 1, report.Failed())
	assert.Len(t, out.Records(), 3)

	byID := map[string]SourceResult{}
	for _, res := range report.Results {
		byID[res.SourceID] = res
	}
	assert.NoError(t, byID["good"].Err)
	assert.Error(t, byID["bad"].Err)
	assert.Equal(t, 3, byID["good"].Records)
}

func TestRunOpensBreakerAfterRepeatedFailures(t *testing.T) {
	s := New(Config{
		Breaker: retry.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	}, zap.NewNop())
	defer s.Close()

	runner := NewRunner(s, nil, 1)
	flaky := &fakeAdapter{id: "flaky", err: errors.New("always down")}

	for i := 0; i < 2; i++ {
		_, err := runner.Run(context.Background(), []Harvester{flaky})
		require.NoError(t, err)
	}
	report, err := runner.Run(context.Background(), []Harvester{flaky})
	require.NoError(t, err)

	require.Error(t, report.Results[0].Err)
	assert.True(t, errors.Is(report.Results[0].Err, harvest.ErrCircuitOpen))
	assert.Equal(t, 2, flaky.calls, "open breaker must not invoke the adapter")
}

func TestRunSinkFailureReported(t *testing.T) {
	s := New(Config{}, zap.NewNop())
	defer s.Close()

	runner := NewRunner(s, failingSink{}, 1)
	a := &fakeAdapter{id: "src", records: records(1)}

	report, err := runner.Run(context.Background(), []Harvester{a})
	require.NoError(t, err)
	require.Error(t, report.Results[0].Err)
	assert.Equal(t, 0, report.TotalRecords)
}

type failingSink struct{}

func (failingSink) Store(context.Context, []harvest.RawGrantData) error {
	return errors.New("disk full")
}
func (failingSink) Close() {}

func TestSessionCloseIdempotent(t *testing.T) {
	s := New(Config{}, zap.NewNop())
	s.Close()
	s.Close()
}
