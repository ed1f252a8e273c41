// Package mcplog implements the MCP logging capability: a session-scoped
// minimum level and the notifications/message emitter. Levels follow RFC
// 5424 priorities, where a lower number means higher severity.
package mcplog

import (
	"fmt"
	"sync"
)

// Method is the notification method log messages are sent under.
const Method = "notifications/message"

// Level is an RFC 5424 syslog severity name.
type Level string

// The eight RFC 5424 levels, most severe first.
const (
	LevelEmergency Level = "emergency"
	LevelAlert     Level = "alert"
	LevelCritical  Level = "critical"
	LevelError     Level = "error"
	LevelWarning   Level = "warning"
	LevelNotice    Level = "notice"
	LevelInfo      Level = "info"
	LevelDebug     Level = "debug"
)

// priorities maps level names to RFC 5424 numeric priorities.
var priorities = map[Level]int{
	LevelEmergency: 0,
	LevelAlert:     1,
	LevelCritical:  2,
	LevelError:     3,
	LevelWarning:   4,
	LevelNotice:    5,
	LevelInfo:      6,
	LevelDebug:     7,
}

// Priority returns the numeric priority of a level, or an error for
// unrecognized names.
func Priority(level Level) (int, error) {
	p, ok := priorities[level]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return p, nil
}

// Valid reports whether level is one of the eight RFC 5424 names.
func Valid(level Level) bool {
	_, ok := priorities[level]
	return ok
}

// Params is the payload of a notifications/message notification.
type Params struct {
	Level   Level  `json:"level"`
	Logger  string `json:"logger,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// SendFunc delivers one log notification to the session's outbound stream.
type SendFunc func(Params)

// Handler filters log messages against a session's minimum level.
type Handler struct {
	mu   sync.RWMutex
	min  Level
	send SendFunc
}

// NewHandler creates a handler with the given initial minimum level.
func NewHandler(min Level, send SendFunc) *Handler {
	if !Valid(min) {
		min = LevelInfo
	}
	return &Handler{min: min, send: send}
}

// SetLevel atomically updates the minimum level. Invalid levels are
// rejected so the caller can map the failure to invalid-params.
func (h *Handler) SetLevel(level Level) error {
	if !Valid(level) {
		return fmt.Errorf("invalid log level %q", level)
	}
	h.mu.Lock()
	h.min = level
	h.mu.Unlock()
	return nil
}

// Level returns the current minimum level.
func (h *Handler) Level() Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.min
}

// Log emits a notifications/message iff the message's priority is at or
// above the session threshold (numerically ≤, since lower is more severe).
// Messages with unknown levels are dropped.
func (h *Handler) Log(level Level, message, logger string, data any) {
	p, err := Priority(level)
	if err != nil {
		return
	}

	h.mu.RLock()
	minPriority := priorities[h.min]
	h.mu.RUnlock()

	if p > minPriority {
		return
	}

	h.send(Params{
		Level:   level,
		Logger:  logger,
		Message: message,
		Data:    data,
	})
}
