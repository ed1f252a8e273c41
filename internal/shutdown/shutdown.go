// Package shutdown coordinates graceful teardown: named cleanup handlers
// registered at startup run in reverse order when the server drains, each
// bounded by a per-handler timeout inside an overall budget.
package shutdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the overall drain budget.
	DefaultTimeout = 30 * time.Second

	// DefaultHandlerTimeout bounds a single cleanup handler.
	DefaultHandlerTimeout = 10 * time.Second
)

// Handler is one cleanup step. It should return promptly when its context
// is cancelled.
type Handler func(ctx context.Context) error

type entry struct {
	name string
	fn   Handler
}

// Manager runs registered cleanup handlers in reverse registration order.
type Manager struct {
	mu             sync.Mutex
	entries        []entry
	done           bool
	timeout        time.Duration
	handlerTimeout time.Duration
	logger         *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the overall drain budget.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithHandlerTimeout sets the per-handler bound.
func WithHandlerTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.handlerTimeout = d
		}
	}
}

// NewManager creates an empty shutdown manager.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		timeout:        DefaultTimeout,
		handlerTimeout: DefaultHandlerTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register appends a named cleanup handler. Handlers registered first run
// last, mirroring construction order.
func (m *Manager) Register(name string, fn Handler) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.entries = append(m.entries, entry{name: name, fn: fn})
	m.mu.Unlock()
}

// Run executes all handlers in reverse registration order.
//
// Each handler gets the smaller of the per-handler timeout and what remains
// of the overall budget; a handler that overruns is abandoned and teardown
// moves on. Run is idempotent: second and later calls are no-ops. The
// returned error aggregates handler failures without stopping the sequence.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	entries := make([]entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	overall, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var failures []string
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		if overall.Err() != nil {
			m.logger.Error("shutdown budget exhausted, abandoning remaining handlers",
				zap.String("next", e.name),
				zap.Int("remaining", i+1))
			failures = append(failures, fmt.Sprintf("%s: budget exhausted", e.name))
			continue
		}

		if err := m.runOne(overall, e); err != nil {
			m.logger.Error("cleanup handler failed",
				zap.String("handler", e.name),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", e.name, err))
			continue
		}
		m.logger.Debug("cleanup handler finished", zap.String("handler", e.name))
	}

	if len(failures) > 0 {
		return fmt.Errorf("shutdown completed with %d failure(s): %v", len(failures), failures)
	}
	return nil
}

// runOne executes a single handler under its timeout. The handler runs in
// its own goroutine so an unresponsive one cannot stall the sequence.
func (m *Manager) runOne(ctx context.Context, e entry) error {
	hctx, cancel := context.WithTimeout(ctx, m.handlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- e.fn(hctx)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("timed out after %s", m.handlerTimeout)
	}
}
