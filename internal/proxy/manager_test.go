package proxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = time.Hour // keep the timer out of the way
	}
	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManager_RoundRobinCycles(t *testing.T) {
	m := newTestManager(t, Config{
		Endpoints: []string{"http://p1:3128", "http://p2:3128"},
		Strategy:  RoundRobin,
	})
	a := m.Next()
	b := m.Next()
	c := m.Next()
	require.NotNil(t, a)
	assert.NotEqual(t, a.URL.Host, b.URL.Host)
	assert.Equal(t, a.URL.Host, c.URL.Host)
}

func TestManager_UnhealthyExcludedUntilProbeRestores(t *testing.T) {
	m := newTestManager(t, Config{
		Endpoints:     []string{"http://p1:3128"},
		Strategy:      RoundRobin,
		MaxErrorCount: 2,
	})

	failing := errors.New("connect refused")
	m.probe = func(context.Context, *Proxy) (time.Duration, error) { return 0, failing }
	m.CheckAll(context.Background())
	require.NotNil(t, m.Next(), "one failure is below the threshold")

	m.CheckAll(context.Background())
	assert.Nil(t, m.Next(), "proxy must be excluded after max consecutive failures")
	assert.Equal(t, 0, m.HealthyCount())

	// A single successful probe restores health and resets the error count.
	m.probe = func(context.Context, *Proxy) (time.Duration, error) { return 20 * time.Millisecond, nil }
	m.CheckAll(context.Background())
	p := m.Next()
	require.NotNil(t, p)
	assert.True(t, p.Health.IsHealthy)
	assert.Equal(t, 0, p.Health.ErrorCount)
}

func TestManager_HealthObserverTracksFlips(t *testing.T) {
	var counts []int
	m := newTestManager(t, Config{
		Endpoints:      []string{"http://p1:3128", "http://p2:3128"},
		MaxErrorCount:  1,
		OnHealthChange: func(healthy int) { counts = append(counts, healthy) },
	})

	p := m.Next()
	require.NotNil(t, p)
	m.MarkErrored(p)
	require.Equal(t, []int{1}, counts, "a flip to unhealthy reports the new count")

	m.probe = func(context.Context, *Proxy) (time.Duration, error) { return time.Millisecond, nil }
	m.CheckAll(context.Background())
	assert.Equal(t, []int{1, 2}, counts, "a probe sweep reports the restored count")
}

func TestManager_LeastUsedPrefersColdProxy(t *testing.T) {
	m := newTestManager(t, Config{
		Endpoints: []string{"http://p1:3128", "http://p2:3128"},
		Strategy:  LeastUsed,
	})
	first := m.Next()
	m.MarkUsed(first)
	m.MarkUsed(first)
	second := m.Next()
	assert.NotEqual(t, first.URL.Host, second.URL.Host)
}

func TestManager_FastestPrefersLowestRTT(t *testing.T) {
	m := newTestManager(t, Config{
		Endpoints: []string{"http://slow:3128", "http://fast:3128"},
		Strategy:  Fastest,
	})
	m.proxies[0].Health.ResponseTime = 900 * time.Millisecond
	m.proxies[1].Health.ResponseTime = 30 * time.Millisecond
	p := m.Next()
	require.NotNil(t, p)
	assert.Equal(t, "fast:3128", p.URL.Host)
}

func TestManager_MarkErroredFlipsUnhealthy(t *testing.T) {
	m := newTestManager(t, Config{
		Endpoints:     []string{"http://p1:3128"},
		MaxErrorCount: 3,
	})
	p := m.Next()
	require.NotNil(t, p)
	m.MarkErrored(p)
	m.MarkErrored(p)
	require.NotNil(t, m.Next())
	m.MarkErrored(p)
	assert.Nil(t, m.Next())
}

func TestManager_SuccessInterruptsErrorStreak(t *testing.T) {
	m := newTestManager(t, Config{
		Endpoints:     []string{"http://p1:3128"},
		MaxErrorCount: 3,
	})
	p := m.Next()
	require.NotNil(t, p)

	// Five failures total, but never three in a row.
	for i := 0; i < 5; i++ {
		m.MarkErrored(p)
		m.MarkErrored(p)
		m.MarkUsed(p)
	}
	assert.NotNil(t, m.Next(), "scattered failures alone never flip the proxy")

	m.MarkErrored(p)
	m.MarkErrored(p)
	m.MarkErrored(p)
	assert.Nil(t, m.Next())
}

func TestPool_CloseReleasesManagers(t *testing.T) {
	pool := NewPool(nil)
	_, err := pool.Add("gov", Config{Endpoints: []string{"http://p1:3128"}, ProbeInterval: time.Hour})
	require.NoError(t, err)
	_, err = pool.Add("gov", Config{})
	assert.Error(t, err, "duplicate names must be rejected")

	require.NotNil(t, pool.Get("gov"))
	pool.Close()
	pool.Close() // idempotent

	_, err = pool.Add("late", Config{})
	assert.Error(t, err, "closed pool must reject new managers")
}
