package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grantscope/harvester/internal/harvest"
)

// BreakerConfig controls a circuit breaker keyed by operation.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = time.Minute
	}
	return c
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type breaker struct {
	state       circuitState
	failures    int
	lastFailure time.Time
}

// Breakers is the per-session circuit-breaker state map, keyed by an
// operation-derived string (typically a source id). Safe for concurrent use.
type Breakers struct {
	mu     sync.Mutex
	states map[string]*breaker
	now    func() time.Time
}

// NewBreakers builds an empty state map.
func NewBreakers() *Breakers {
	return &Breakers{states: make(map[string]*breaker), now: time.Now}
}

// admit decides whether a call may proceed, transitioning open circuits to
// half-open once the reset timeout has elapsed.
func (b *Breakers) admit(key string, cfg BreakerConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	if !ok {
		st = &breaker{}
		b.states[key] = st
	}
	switch st.state {
	case circuitOpen:
		if b.now().Sub(st.lastFailure) < cfg.ResetTimeout {
			return fmt.Errorf("operation %q rejected: %w", key, harvest.ErrCircuitOpen)
		}
		// One trial attempt is permitted.
		st.state = circuitHalfOpen
		return nil
	default:
		return nil
	}
}

func (b *Breakers) record(key string, cfg BreakerConfig, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.states[key]
	if st == nil {
		return
	}
	if err == nil {
		st.state = circuitClosed
		st.failures = 0
		return
	}
	st.failures++
	st.lastFailure = b.now()
	if st.state == circuitHalfOpen || st.failures >= cfg.FailureThreshold {
		st.state = circuitOpen
	}
}

// DoWithBreaker runs op (itself wrapped in Do) behind the circuit for key.
// An open circuit rejects immediately with harvest.ErrCircuitOpen without
// invoking op.
func DoWithBreaker[T any](ctx context.Context, b *Breakers, key string, op func(context.Context) (T, error), opts Options, cfg BreakerConfig) (T, Result, error) {
	cfg = cfg.withDefaults()
	var zero T
	if err := b.admit(key, cfg); err != nil {
		return zero, Result{}, err
	}
	v, res, err := Do(ctx, op, opts)
	b.record(key, cfg, err)
	return v, res, err
}
