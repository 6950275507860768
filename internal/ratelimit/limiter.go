// Package ratelimit implements sliding-window admission control keyed per
// source, plus a registry shared by one harvesting session.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultWindow = time.Minute
	// maxWaitRounds bounds the admit loop so pathological configurations
	// (e.g. requests_per_minute of 0) fail instead of spinning forever.
	maxWaitRounds = 1000
)

// Config controls one limiter.
type Config struct {
	RequestsPerMinute int
	Burst             int
	Window            time.Duration
}

// Limiter admits requests while the trailing window holds fewer than both the
// burst and per-minute thresholds; otherwise callers suspend until the oldest
// in-window timestamp expires and the window is re-evaluated.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	stamps []time.Time
	now    func() time.Time
}

// New builds a Limiter. A zero window defaults to one minute; a zero burst
// defaults to the per-minute threshold.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	return &Limiter{cfg: cfg, now: time.Now}
}

// Wait blocks cooperatively until the window admits one more request, then
// records it. Returns an error if ctx finishes first or the configuration can
// never admit a request.
func (l *Limiter) Wait(ctx context.Context) error {
	for round := 0; round < maxWaitRounds; round++ {
		delay, ok := l.tryAdmit()
		if ok {
			return nil
		}
		if delay <= 0 {
			// No in-window request to expire; the thresholds admit nothing.
			return fmt.Errorf("rate limiter cannot admit: requests_per_minute=%d burst=%d",
				l.cfg.RequestsPerMinute, l.cfg.Burst)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("rate limiter gave up after %d rounds", maxWaitRounds)
}

// tryAdmit records a request if the window allows it, or returns how long to
// wait before the oldest in-window timestamp expires.
func (l *Limiter) tryAdmit() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.stamps) < l.cfg.Burst && len(l.stamps) < l.cfg.RequestsPerMinute {
		l.stamps = append(l.stamps, now)
		return 0, true
	}
	if len(l.stamps) == 0 {
		return 0, false
	}
	return l.stamps[0].Add(l.cfg.Window).Sub(now), false
}

// RequestCount reports how many requests remain inside the trailing window.
func (l *Limiter) RequestCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// Reset forgets all recorded requests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = l.stamps[:0]
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
