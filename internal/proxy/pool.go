package proxy

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Pool manages multiple named Managers, typically one per source class.
// Closing the pool releases every manager's background timer.
type Pool struct {
	mu       sync.Mutex
	managers map[string]*Manager
	logger   *zap.Logger
	closed   bool
}

// NewPool builds an empty pool.
func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		managers: make(map[string]*Manager),
		logger:   logger,
	}
}

// Add creates and registers a manager under name. Adding a duplicate name or
// adding to a closed pool is an error.
func (p *Pool) Add(name string, cfg Config) (*Manager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("proxy pool is closed")
	}
	if _, ok := p.managers[name]; ok {
		return nil, fmt.Errorf("proxy pool already has manager %q", name)
	}
	m, err := NewManager(cfg, p.logger.Named(name))
	if err != nil {
		return nil, err
	}
	p.managers[name] = m
	return m, nil
}

// Get returns the manager registered under name, or nil.
func (p *Pool) Get(name string) *Manager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.managers[name]
}

// Close tears down every manager. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	managers := make([]*Manager, 0, len(p.managers))
	for _, m := range p.managers {
		managers = append(managers, m)
	}
	p.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}
