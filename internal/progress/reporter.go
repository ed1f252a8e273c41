// Package progress implements throttled progress notifications for
// long-running tool calls. A reporter is bound to one request's progress
// token and coalesces bursts of updates into at most one notification per
// throttle window.
package progress

import (
	"sync"
	"time"
)

// DefaultThrottle is the minimum interval between progress notifications.
const DefaultThrottle = 100 * time.Millisecond

// Method is the notification method name progress updates are sent under.
const Method = "notifications/progress"

// Params is the payload of a notifications/progress notification.
type Params struct {
	ProgressToken any      `json:"progressToken"`
	Progress      float64  `json:"progress"`
	Total         *float64 `json:"total,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// SendFunc delivers one progress notification to the session's outbound
// stream. Reporters call it sequentially, never concurrently.
type SendFunc func(Params)

// Reporter emits throttled progress notifications for a single request.
//
// Report calls inside the throttle window are coalesced: the latest values
// are stored as pending and flushed by the next call outside the window, or
// by Complete. A Reporter must not be shared across concurrent handler
// branches; it assumes one logical producer.
type Reporter struct {
	mu       sync.Mutex
	token    any
	send     SendFunc
	throttle time.Duration

	lastEmit time.Time
	pending  *Params
	closed   bool

	now func() time.Time // test hook
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a reporter for the given progress token.
// A throttle of zero or less falls back to DefaultThrottle.
func NewReporter(token any, send SendFunc, throttle time.Duration, opts ...Option) *Reporter {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	r := &Reporter{
		token:    token,
		send:     send,
		throttle: throttle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report records a progress update.
//
// If the throttle window since the last emission has passed, the update is
// sent immediately; otherwise it replaces any pending update and is emitted
// by a later Report or by Complete. Calls after Complete are no-ops.
func (r *Reporter) Report(progress float64, total *float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	params := Params{
		ProgressToken: r.token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	}

	now := r.now()
	if now.Sub(r.lastEmit) < r.throttle {
		r.pending = &params
		return
	}

	r.lastEmit = now
	r.pending = nil
	r.send(params)
}

// Complete flushes any pending update and closes the reporter.
//
// With no pending values it emits one final notification. When only a
// completion message is supplied the final notification carries
// progress=100, total=100 by convention; consumers that treat these as real
// percentages should be aware the values are synthetic.
func (r *Reporter) Complete(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	var params Params
	if r.pending != nil {
		params = *r.pending
		if message != "" {
			params.Message = message
		}
		r.pending = nil
	} else {
		total := 100.0
		params = Params{
			ProgressToken: r.token,
			Progress:      100,
			Total:         &total,
			Message:       message,
		}
	}

	r.lastEmit = r.now()
	r.send(params)
}

// Closed reports whether Complete has been called.
func (r *Reporter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
