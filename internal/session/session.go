// Package session owns the shared mutable state of one harvesting run: the
// per-source rate limiters, the proxy pool, the circuit breakers, and the
// metrics registry. Construction happens at run start and Close releases
// every background timer, so nothing lives for implicit process lifetime.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/grantscope/harvester/internal/metrics"
	"github.com/grantscope/harvester/internal/proxy"
	"github.com/grantscope/harvester/internal/ratelimit"
	"github.com/grantscope/harvester/internal/retry"
)

// Config seeds a session's shared registries.
type Config struct {
	// RateLimitDefaults applies to sources without their own limits.
	RateLimitDefaults ratelimit.Config
	Breaker           retry.BreakerConfig
}

// Session is the explicit registry object engines and adapters share.
type Session struct {
	limits   *ratelimit.Registry
	proxies  *proxy.Pool
	breakers *retry.Breakers
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cfg       Config
	closeOnce sync.Once
}

// New builds a session. logger may be nil.
func New(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		limits:   ratelimit.NewRegistry(cfg.RateLimitDefaults),
		proxies:  proxy.NewPool(logger),
		breakers: retry.NewBreakers(),
		metrics:  metrics.New(),
		logger:   logger,
		cfg:      cfg,
	}
}

// Limits returns the per-source rate limiter registry.
func (s *Session) Limits() *ratelimit.Registry { return s.limits }

// Proxies returns the proxy pool.
func (s *Session) Proxies() *proxy.Pool { return s.proxies }

// Breakers returns the circuit breaker registry.
func (s *Session) Breakers() *retry.Breakers { return s.breakers }

// BreakerConfig returns the session-wide breaker settings.
func (s *Session) BreakerConfig() retry.BreakerConfig { return s.cfg.Breaker }

// Metrics returns the session's collectors.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Close stops every background goroutine and timer the session owns.
// Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.proxies.Close()
		s.limits.ResetAll()
		s.logger.Debug("session closed")
	})
}
