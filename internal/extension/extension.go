// Package extension implements namespaced protocol extensions negotiated
// through the experimental capability map. Extensions register at startup;
// each session enables the intersection of its client's experimental map
// and the registered set.
package extension

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"
)

// nameRe enforces the namespace/name shape of extension identifiers.
var nameRe = regexp.MustCompile(`^[a-z0-9-]+/[a-z0-9-]+$`)

// Extension is one negotiable protocol extension.
//
// OnInitialize runs when a session enables the extension, with that
// client's settings slice only; extensions never see each other's settings
// or share registry state. OnShutdown runs during session or server
// teardown in reverse registration order. Either hook may be nil.
type Extension struct {
	Name         string
	Description  string
	OnInitialize func(ctx context.Context, clientSettings map[string]any) error
	OnShutdown   func(ctx context.Context) error
}

// Registry holds registered extensions. Registration is write-once at
// startup; sessions read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	extensions map[string]*Extension
	order      []string
	logger     *zap.Logger
}

// NewRegistry creates an empty extension registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		extensions: make(map[string]*Extension),
		logger:     logger,
	}
}

// Register adds an extension. Names must match namespace/name and be unique.
func (r *Registry) Register(ext *Extension) error {
	if ext == nil || !nameRe.MatchString(ext.Name) {
		name := ""
		if ext != nil {
			name = ext.Name
		}
		return fmt.Errorf("invalid extension name %q: must match namespace/name", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.extensions[ext.Name]; exists {
		return fmt.Errorf("extension %q already registered", ext.Name)
	}
	r.extensions[ext.Name] = ext
	r.order = append(r.order, ext.Name)
	return nil
}

// Names returns registered extension names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Advertised returns the experimental capability map the server includes in
// its initialize result: one entry per registered extension.
func (r *Registry) Advertised() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.order))
	for _, name := range r.order {
		out[name] = map[string]any{}
	}
	return out
}

// SessionSet is the extensions one session negotiated, in registration
// order, ready for reverse-order shutdown.
type SessionSet struct {
	enabled []*Extension
	logger  *zap.Logger
}

// Negotiate intersects the client's experimental map with the registered
// extensions, runs each winner's OnInitialize with that client's settings,
// and returns the session's enabled set. An extension whose OnInitialize
// fails is skipped, not fatal.
func (r *Registry) Negotiate(ctx context.Context, clientExperimental map[string]any) *SessionSet {
	set := &SessionSet{logger: r.logger}
	if len(clientExperimental) == 0 {
		return set
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		raw, requested := clientExperimental[name]
		if !requested {
			continue
		}
		ext := r.extensions[name]

		settings, _ := raw.(map[string]any)
		if ext.OnInitialize != nil {
			if err := ext.OnInitialize(ctx, settings); err != nil {
				r.logger.Warn("extension initialization failed",
					zap.String("extension", name),
					zap.Error(err))
				continue
			}
		}
		set.enabled = append(set.enabled, ext)
	}
	return set
}

// Enabled returns the enabled extension names in registration order.
func (s *SessionSet) Enabled() []string {
	names := make([]string, len(s.enabled))
	for i, ext := range s.enabled {
		names[i] = ext.Name
	}
	return names
}

// Has reports whether the named extension was negotiated.
func (s *SessionSet) Has(name string) bool {
	for _, ext := range s.enabled {
		if ext.Name == name {
			return true
		}
	}
	return false
}

// Shutdown runs OnShutdown hooks in reverse registration order. Hook
// failures are logged and do not stop the remaining hooks.
func (s *SessionSet) Shutdown(ctx context.Context) {
	for i := len(s.enabled) - 1; i >= 0; i-- {
		ext := s.enabled[i]
		if ext.OnShutdown == nil {
			continue
		}
		if err := ext.OnShutdown(ctx); err != nil && s.logger != nil {
			s.logger.Warn("extension shutdown failed",
				zap.String("extension", ext.Name),
				zap.Error(err))
		}
	}
}
