package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultIdleTTL is how long a session may sit without activity before the
// sweeper expires it.
const DefaultIdleTTL = 30 * time.Minute

// sweepInterval is how often the background sweeper scans for idle sessions.
const sweepInterval = time.Minute

// Manager creates, resolves, and expires sessions for the HTTP transport.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ringSize int
	idleTTL  time.Duration
	logger   *zap.Logger

	now func() time.Time
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithIdleTTL overrides the idle expiry window.
func WithIdleTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.idleTTL = ttl
		}
	}
}

// WithRingSize overrides the per-session SSE replay buffer capacity.
func WithRingSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.ringSize = n
		}
	}
}

// WithManagerClock injects a clock for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty session manager.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		ringSize: DefaultRingSize,
		idleTTL:  DefaultIdleTTL,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// idBytes is the entropy of a session id (256 bits). Session ids are
// bearer credentials on the HTTP transport and must be unguessable.
const idBytes = 32

// NewID mints a fresh session identifier: 256 bits from crypto/rand as
// unpadded base64url.
func NewID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create allocates a new session with a fresh unguessable id.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for range 5 {
		id, err := NewID()
		if err != nil {
			return nil, err
		}
		if _, taken := m.sessions[id]; taken {
			continue
		}
		s := New(id, m.ringSize)
		s.lastActivity = m.now()
		m.sessions[id] = s
		m.logger.Debug("session created", zap.String("session_id", id))
		return s, nil
	}
	return nil, fmt.Errorf("session id collision persisted across retries")
}

// Get resolves a session by id, recording activity on hit.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.Touch()
	}
	return s, ok
}

// Delete closes and removes a session. Returns false if the id is unknown.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close(ctx)
	m.logger.Debug("session deleted", zap.String("session_id", id))
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep expires sessions idle longer than the TTL and returns how many were
// removed.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close(ctx)
		m.logger.Info("session expired", zap.String("session_id", s.ID))
	}
	return len(expired)
}

// RunSweeper expires idle sessions periodically until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Shutdown closes every session. Used during server drain.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
}
