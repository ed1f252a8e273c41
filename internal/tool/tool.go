// Package tool implements the MCP tool pipeline: a registry of
// schema-described tools and an executor that validates arguments, enforces
// timeouts and cancellation, and wraps every failure mode into the
// structured result envelope the model sees.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/fyrsmithlabs/mcpd/internal/progress"
)

// nameRe restricts tool names to the MCP identifier charset.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Annotations are behavioral hints about a tool. They are advisory only and
// never enforced by the server.
type Annotations struct {
	ReadOnlyHint    bool `json:"readOnlyHint,omitempty"`
	DestructiveHint bool `json:"destructiveHint,omitempty"`
	IdempotentHint  bool `json:"idempotentHint,omitempty"`
	OpenWorldHint   bool `json:"openWorldHint,omitempty"`
}

// Content is one part of a tool result. Type is "text" for text parts;
// image parts carry base64 data and a mime type.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// TextContent builds a text content part.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// Result is the envelope returned from tools/call. IsError marks tool-level
// failures, which are reported to the model as successful JSON-RPC responses.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// ErrorResult builds an isError result with a single text part.
func ErrorResult(format string, args ...any) *Result {
	return &Result{
		Content: []Content{TextContent(fmt.Sprintf(format, args...))},
		IsError: true,
	}
}

// TextResult builds a success result with a single text part.
func TextResult(text string) *Result {
	return &Result{Content: []Content{TextContent(text)}}
}

// JSONResult marshals v into a single text part, the conventional way MCP
// tools return structured data.
func JSONResult(v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling tool result: %w", err)
	}
	return TextResult(string(data)), nil
}

// Handler executes a tool call. Arguments have already passed schema
// validation. The reporter is nil when the request carried no progress
// token. Handlers should observe ctx at their suspension points; those that
// ignore cancellation run to completion but their result is discarded.
type Handler func(ctx context.Context, args map[string]any, reporter *progress.Reporter) (*Result, error)

// Tool is a registered tool. Immutable after registration.
type Tool struct {
	Name        string
	Title       string
	Description string
	InputSchema map[string]any
	Annotations *Annotations
	Handler     Handler

	// Timeout caps this tool's execution time. Zero means the executor
	// default applies; the effective limit is the smaller of the two.
	Timeout time.Duration
}

// Definition is the client-visible description of a tool, as listed by
// tools/list.
type Definition struct {
	Name        string         `json:"name"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
	Annotations *Annotations   `json:"annotations,omitempty"`
}

// Registry holds tools in insertion order. Registration happens at startup;
// after that the registry is read-mostly, so an RW mutex suffices.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Names must match [a-zA-Z0-9_-]+ and be unique.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if !nameRe.MatchString(t.Name) {
		return fmt.Errorf("invalid tool name %q: must match [a-zA-Z0-9_-]+", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns all tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		defs = append(defs, Definition{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: schema,
			Annotations: t.Annotations,
		})
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
