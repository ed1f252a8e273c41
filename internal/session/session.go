// Package session implements the server's session layer: per-connection
// protocol state, the replayable SSE stream, in-flight request
// cancellation, and the manager that creates, looks up, and expires
// sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/mcpd/internal/extension"
	"github.com/fyrsmithlabs/mcpd/internal/jsonrpc"
	"github.com/fyrsmithlabs/mcpd/internal/lifecycle"
	"github.com/fyrsmithlabs/mcpd/internal/mcplog"
)

// Session is one client's protocol lifetime.
//
// The zero value is not usable; sessions come from Manager.Create or, for
// the stdio transport, New.
type Session struct {
	ID        string
	CreatedAt time.Time

	Lifecycle *lifecycle.Manager
	Log       *mcplog.Handler
	Stream    *Stream

	// Extensions is the enabled set negotiated at initialize. Set once by
	// the router during the handshake.
	Extensions *extension.SessionSet

	stateMu      sync.Mutex
	lastActivity time.Time
	cancels      map[string]context.CancelFunc

	// outbound overrides where notifications go. Defaults to the SSE
	// stream; the stdio transport points it at stdout.
	outbound func(data []byte)
}

// New creates a standalone session (stdio transport, tests).
func New(id string, ringSize int) *Session {
	now := time.Now()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		lastActivity: now,
		Lifecycle:    lifecycle.NewManager(),
		Stream:       NewStream(ringSize),
		cancels:      make(map[string]context.CancelFunc),
	}
	s.Log = mcplog.NewHandler(mcplog.LevelInfo, func(p mcplog.Params) {
		s.Notify(mcplog.Method, p)
	})
	return s
}

// SetOutbound redirects notifications away from the SSE stream.
func (s *Session) SetOutbound(fn func(data []byte)) {
	s.stateMu.Lock()
	s.outbound = fn
	s.stateMu.Unlock()
}

// Notify sends a JSON-RPC notification on the session's outbound channel.
// Encoding failures are silently dropped; notifications are fire-and-forget.
func (s *Session) Notify(method string, params any) {
	data, err := jsonrpc.Encode(jsonrpc.NewNotification(method, params))
	if err != nil {
		return
	}
	s.Deliver(data)
}

// Deliver writes an already-encoded frame to the outbound channel: the
// custom outbound hook when set, otherwise the SSE stream buffer.
func (s *Session) Deliver(data []byte) {
	s.stateMu.Lock()
	out := s.outbound
	s.stateMu.Unlock()

	if out != nil {
		out(data)
		return
	}
	s.Stream.Send("message", string(data))
}

// Touch records activity, deferring idle expiry.
func (s *Session) Touch() {
	s.stateMu.Lock()
	s.lastActivity = time.Now()
	s.stateMu.Unlock()
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastActivity
}

// TrackRequest derives a cancellable context for an in-flight request and
// registers its cancel token. The returned release function must be called
// when the request finishes.
func (s *Session) TrackRequest(ctx context.Context) (context.Context, func()) {
	reqCtx, cancel := context.WithCancel(ctx)

	key := uuid.NewString()
	s.stateMu.Lock()
	s.cancels[key] = cancel
	s.stateMu.Unlock()

	release := func() {
		s.stateMu.Lock()
		delete(s.cancels, key)
		s.stateMu.Unlock()
		cancel()
	}
	return reqCtx, release
}

// CancelInFlight aborts every in-flight request on this session. Returns
// the number of requests cancelled.
func (s *Session) CancelInFlight() int {
	s.stateMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for _, c := range s.cancels {
		cancels = append(cancels, c)
	}
	s.cancels = make(map[string]context.CancelFunc)
	s.stateMu.Unlock()

	for _, c := range cancels {
		c()
	}
	return len(cancels)
}

// Close shuts the session down: lifecycle to terminal state, in-flight
// requests cancelled, extension hooks run.
func (s *Session) Close(ctx context.Context) {
	s.Lifecycle.Shutdown()
	s.CancelInFlight()
	if s.Extensions != nil {
		s.Extensions.Shutdown(ctx)
	}
}
