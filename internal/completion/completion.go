// Package completion implements the completion/complete capability: a
// registry of candidate providers keyed either by (tool, argument) for the
// simple case or by (refType, name) for full control over the result.
package completion

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MaxValues caps the number of candidates returned to the client.
const MaxValues = 20

// RefTypeTool is the reference type for tool-argument completion.
const RefTypeTool = "ref/tool"

// Ref identifies what is being completed.
type Ref struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Argument is the argument under completion and the prefix typed so far.
type Argument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Result is the completion payload returned to the client.
type Result struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// SimpleProvider returns candidate strings for one tool argument. The
// handler applies prefix filtering and the cap on its behalf.
type SimpleProvider func(ctx context.Context, prefix string) ([]string, error)

// FullProvider computes a complete Result for a (refType, name) pair. Its
// result is returned to the client unmodified.
type FullProvider func(ctx context.Context, arg Argument) (Result, error)

type simpleKey struct {
	tool     string
	argument string
}

type fullKey struct {
	refType string
	name    string
}

// Handler dispatches completion requests to registered providers.
type Handler struct {
	mu     sync.RWMutex
	simple map[simpleKey]SimpleProvider
	full   map[fullKey]FullProvider
}

// NewHandler creates an empty completion handler.
func NewHandler() *Handler {
	return &Handler{
		simple: make(map[simpleKey]SimpleProvider),
		full:   make(map[fullKey]FullProvider),
	}
}

// RegisterSimple registers a candidate provider for one tool argument.
// Duplicate registration is rejected.
func (h *Handler) RegisterSimple(tool, argument string, p SimpleProvider) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := simpleKey{tool: tool, argument: argument}
	if _, exists := h.simple[key]; exists {
		return fmt.Errorf("completion provider already registered for tool %q argument %q", tool, argument)
	}
	h.simple[key] = p
	return nil
}

// RegisterFull registers a full provider for a (refType, name) pair.
// Duplicate registration is rejected.
func (h *Handler) RegisterFull(refType, name string, p FullProvider) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := fullKey{refType: refType, name: name}
	if _, exists := h.full[key]; exists {
		return fmt.Errorf("completion provider already registered for %s %q", refType, name)
	}
	h.full[key] = p
	return nil
}

// Complete resolves one completion request.
//
// Dispatch order: a simple provider registered for (ref.name, arg.name) wins
// when ref.type is ref/tool; otherwise a full provider for (ref.type,
// ref.name); otherwise an empty result. Simple-provider candidates are
// filtered case-insensitively by the typed prefix and capped at MaxValues,
// with total/hasMore set only when the cap truncates.
func (h *Handler) Complete(ctx context.Context, ref Ref, arg Argument) (Result, error) {
	h.mu.RLock()
	simple, hasSimple := h.simple[simpleKey{tool: ref.Name, argument: arg.Name}]
	full, hasFull := h.full[fullKey{refType: ref.Type, name: ref.Name}]
	h.mu.RUnlock()

	if ref.Type == RefTypeTool && hasSimple {
		candidates, err := simple(ctx, arg.Value)
		if err != nil {
			return Result{}, fmt.Errorf("completion provider for %q/%q: %w", ref.Name, arg.Name, err)
		}
		return capValues(filterPrefix(candidates, arg.Value)), nil
	}

	if hasFull {
		result, err := full(ctx, arg)
		if err != nil {
			return Result{}, fmt.Errorf("completion provider for %s %q: %w", ref.Type, ref.Name, err)
		}
		return result, nil
	}

	return Result{Values: []string{}}, nil
}

// filterPrefix keeps candidates matching the prefix, case-insensitively.
func filterPrefix(candidates []string, prefix string) []string {
	if prefix == "" {
		return candidates
	}
	lower := strings.ToLower(prefix)
	filtered := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), lower) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// capValues truncates to MaxValues, recording the pre-cap size.
func capValues(values []string) Result {
	if values == nil {
		values = []string{}
	}
	if len(values) <= MaxValues {
		return Result{Values: values}
	}
	return Result{
		Values:  values[:MaxValues],
		Total:   len(values),
		HasMore: true,
	}
}
