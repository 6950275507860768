// Package proxy implements health-checked, multi-strategy proxy rotation for
// outbound harvesting traffic.
package proxy

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Strategy selects how the next healthy proxy is chosen.
type Strategy string

// Rotation strategies.
const (
	RoundRobin Strategy = "round-robin"
	Random     Strategy = "random"
	LeastUsed  Strategy = "least-used"
	Fastest    Strategy = "fastest"
)

// Health is the mutable health record tracked per proxy.
type Health struct {
	IsHealthy    bool
	ResponseTime time.Duration
	ErrorCount   int
	SuccessCount int
	LastChecked  time.Time
}

// Proxy pairs an endpoint with its health record.
type Proxy struct {
	URL    *url.URL
	Health Health
}

// Config controls a Manager.
type Config struct {
	// Endpoints are proxy URLs, e.g. "http://10.0.0.5:3128".
	Endpoints []string
	Strategy  Strategy
	// ProbeURL is a lightweight "echo my IP" endpoint; any 200 counts as
	// healthy regardless of body shape.
	ProbeURL      string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	// MaxErrorCount is how many consecutive failures flip a proxy unhealthy.
	MaxErrorCount int
	// OnHealthChange, when set, receives the current healthy-proxy count
	// after every probe sweep and whenever a proxy flips unhealthy.
	OnHealthChange func(healthy int)
}

// Manager rotates across a set of proxies, probing their health on a timer.
// All state mutations are safe for concurrent callers sharing one instance.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	proxies []*Proxy
	cursor  int
	probe   func(ctx context.Context, p *Proxy) (time.Duration, error)
	logger  *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewManager parses the configured endpoints and starts the health-check
// timer. Proxies start healthy until a probe says otherwise.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxErrorCount <= 0 {
		cfg.MaxErrorCount = 3
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 5 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = "https://api.ipify.org"
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.probe = m.httpProbe
	for _, raw := range cfg.Endpoints {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url %q: %w", raw, err)
		}
		m.proxies = append(m.proxies, &Proxy{URL: u, Health: Health{IsHealthy: true}})
	}
	go m.healthLoop()
	return m, nil
}

// Close stops the background health-check timer. Safe to call more than once.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Next returns the next healthy proxy per the configured strategy, or nil
// when none is healthy. Callers must treat nil as "proceed without a proxy"
// or fail the operation, never retry forever.
func (m *Manager) Next() *Proxy {
	m.mu.Lock()
	defer m.mu.Unlock()
	healthy := m.healthyLocked()
	if len(healthy) == 0 {
		return nil
	}
	switch m.cfg.Strategy {
	case Random:
		return healthy[rand.Intn(len(healthy))]
	case LeastUsed:
		best := healthy[0]
		for _, p := range healthy[1:] {
			if p.Health.SuccessCount < best.Health.SuccessCount {
				best = p
			}
		}
		return best
	case Fastest:
		best := healthy[0]
		for _, p := range healthy[1:] {
			if p.Health.ResponseTime < best.Health.ResponseTime {
				best = p
			}
		}
		return best
	default: // RoundRobin
		p := healthy[m.cursor%len(healthy)]
		m.cursor++
		return p
	}
}

// MarkUsed records a successful use of the proxy. A success interrupts any
// error streak, so only consecutive failures can flip the proxy unhealthy.
func (m *Manager) MarkUsed(p *Proxy) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Health.SuccessCount++
	p.Health.ErrorCount = 0
}

// MarkErrored records a failed use; the proxy flips unhealthy once the
// consecutive error count reaches the configured maximum.
func (m *Manager) MarkErrored(p *Proxy) {
	if p == nil {
		return
	}
	m.mu.Lock()
	p.Health.ErrorCount++
	flipped := p.Health.IsHealthy && p.Health.ErrorCount >= m.cfg.MaxErrorCount
	if flipped {
		p.Health.IsHealthy = false
	}
	m.mu.Unlock()
	if flipped {
		m.notifyHealth()
	}
}

// HealthyCount reports how many proxies are currently usable.
func (m *Manager) HealthyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.healthyLocked())
}

// CheckAll probes every proxy once, synchronously. The periodic timer calls
// this; tests may call it directly.
func (m *Manager) CheckAll(ctx context.Context) {
	m.mu.Lock()
	proxies := append([]*Proxy(nil), m.proxies...)
	m.mu.Unlock()

	for _, p := range proxies {
		rtt, err := m.probe(ctx, p)
		m.mu.Lock()
		p.Health.LastChecked = time.Now()
		if err != nil {
			p.Health.ErrorCount++
			if p.Health.ErrorCount >= m.cfg.MaxErrorCount {
				p.Health.IsHealthy = false
			}
			m.mu.Unlock()
			m.logger.Warn("proxy health probe failed",
				zap.String("proxy", p.URL.Host), zap.Error(err))
			continue
		}
		// Any successful probe restores health and resets the error count.
		p.Health.IsHealthy = true
		p.Health.ErrorCount = 0
		p.Health.SuccessCount++
		p.Health.ResponseTime = rtt
		m.mu.Unlock()
	}
	m.notifyHealth()
}

// notifyHealth reports the current healthy count to the configured observer.
func (m *Manager) notifyHealth() {
	if m.cfg.OnHealthChange == nil {
		return
	}
	m.cfg.OnHealthChange(m.HealthyCount())
}

func (m *Manager) healthyLocked() []*Proxy {
	out := make([]*Proxy, 0, len(m.proxies))
	for _, p := range m.proxies {
		if p.Health.IsHealthy {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) healthLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout*time.Duration(len(m.proxies)+1))
			m.CheckAll(ctx)
			cancel()
		}
	}
}

func (m *Manager) httpProbe(ctx context.Context, p *Proxy) (time.Duration, error) {
	client := &http.Client{
		Timeout: m.cfg.ProbeTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(p.URL),
			DialContext: (&net.Dialer{
				Timeout:   m.cfg.ProbeTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: m.cfg.ProbeTimeout,
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe through %s: %w", p.URL.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probe through %s: status %d", p.URL.Host, resp.StatusCode)
	}
	return time.Since(start), nil
}
