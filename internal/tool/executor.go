package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fyrsmithlabs/mcpd/internal/progress"
)

const (
	// DefaultTimeout bounds tool execution when neither the config nor the
	// tool specifies a tighter limit.
	DefaultTimeout = 30 * time.Second

	// maxValidationIssues limits how many schema violations are reported
	// back to the model.
	maxValidationIssues = 5
)

// ErrToolNotFound marks a tools/call against an unregistered name. The
// router maps it to a JSON-RPC method-not-found, not a tool-level error.
var ErrToolNotFound = errors.New("tool not found")

// Recorder receives per-invocation measurements. Satisfied by the metrics
// package; nil-safe via the executor.
type Recorder interface {
	RecordInvocation(ctx context.Context, toolName string, duration time.Duration, err error)
	IncrementActive(ctx context.Context, toolName string)
	DecrementActive(ctx context.Context, toolName string)
}

// Executor runs tool calls against a registry.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	throttle time.Duration
	logger   *zap.Logger
	recorder Recorder

	// Compiled schemas, keyed by tool name. Tools are immutable after
	// registration so compiling once is safe.
	schemas sync.Map
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout overrides the default execution timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithProgressThrottle sets the minimum interval between progress
// notifications for calls that carry a progress token.
func WithProgressThrottle(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.throttle = d
		}
	}
}

// WithRecorder attaches an invocation metrics recorder.
func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry: registry,
		timeout:  DefaultTimeout,
		throttle: progress.DefaultThrottle,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a tool call end to end.
//
// Infrastructure failures (unknown tool) return an error; everything the
// model should see (validation failures, timeouts, handler errors,
// cancellation) comes back as an isError Result with a nil error. The
// returned Result is never nil when err is nil.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, progressToken any, send progress.SendFunc) (*Result, error) {
	t, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if issues := e.validate(t, args); len(issues) > 0 {
		return validationResult(name, issues), nil
	}

	var reporter *progress.Reporter
	if progressToken != nil && send != nil {
		reporter = progress.NewReporter(progressToken, send, e.throttle)
	}

	timeout := e.timeout
	if t.Timeout > 0 && t.Timeout < timeout {
		timeout = t.Timeout
	}

	if e.recorder != nil {
		e.recorder.IncrementActive(ctx, name)
		defer e.recorder.DecrementActive(ctx, name)
	}

	start := time.Now()
	result, execErr := e.invoke(ctx, t, args, reporter, timeout)
	duration := time.Since(start)

	if e.recorder != nil {
		e.recorder.RecordInvocation(ctx, name, duration, execErr)
	}
	e.logger.Debug("tool call finished",
		zap.String("tool", name),
		zap.Duration("duration", duration),
		zap.Bool("is_error", result.IsError))

	return result, nil
}

type invokeOutcome struct {
	result *Result
	err    error
}

// invoke races the handler against the timeout and cancellation.
func (e *Executor) invoke(ctx context.Context, t *Tool, args map[string]any, reporter *progress.Reporter, timeout time.Duration) (*Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool handler panic",
					zap.String("tool", t.Name),
					zap.Any("panic", r))
				done <- invokeOutcome{err: fmt.Errorf("tool handler panic: %v", r)}
			}
		}()
		result, err := t.Handler(execCtx, args, reporter)
		done <- invokeOutcome{result: result, err: err}
	}()

	select {
	case outcome := <-done:
		switch {
		case ctx.Err() != nil:
			// The caller cancelled; even a handler that raced to return
			// first (often with ctx.Err as its error) reports "cancelled".
			return ErrorResult("cancelled"), ctx.Err()
		case errors.Is(outcome.err, context.DeadlineExceeded):
			return ErrorResult("Tool execution timeout"), outcome.err
		case outcome.err != nil:
			// Handler failure: the error message reaches the model, a
			// stack trace never does.
			return ErrorResult("%s", outcome.err.Error()), outcome.err
		case outcome.result == nil:
			return ErrorResult("tool returned no result"), errors.New("nil tool result")
		default:
			return outcome.result, nil
		}

	case <-execCtx.Done():
		// A handler that ignores cancellation may still run to completion;
		// its result is discarded.
		if ctx.Err() != nil {
			return ErrorResult("cancelled"), ctx.Err()
		}
		return ErrorResult("Tool execution timeout"), execCtx.Err()
	}
}

// validate checks args against the tool's input schema and returns up to
// maxValidationIssues human-readable violations.
func (e *Executor) validate(t *Tool, args map[string]any) []string {
	if t.InputSchema == nil {
		return nil
	}

	schema, err := e.compiledSchema(t)
	if err != nil {
		e.logger.Warn("input schema failed to compile, skipping validation",
			zap.String("tool", t.Name), zap.Error(err))
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}
	// The validator only understands plain JSON types, so round-trip the
	// arguments through encoding/json first.
	instance, err := normalizeJSON(args)
	if err != nil {
		return []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}

	if err := schema.Validate(instance); err != nil {
		return flattenValidationError(err)
	}
	return nil
}

// compiledSchema returns the cached compiled schema for a tool.
func (e *Executor) compiledSchema(t *Tool) (*jsonschema.Schema, error) {
	if cached, ok := e.schemas.Load(t.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	resource := t.Name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	e.schemas.Store(t.Name, schema)
	return schema, nil
}

// normalizeJSON round-trips a value through encoding/json so numbers and
// nested maps take their canonical JSON representation.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
}

// flattenValidationError extracts leaf violations from a jsonschema error.
func flattenValidationError(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	printer := message.NewPrinter(language.English)
	var issues []string
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(issues) >= maxValidationIssues {
			return
		}
		if len(v.Causes) == 0 {
			location := "/" + strings.Join(v.InstanceLocation, "/")
			issues = append(issues, fmt.Sprintf("%s: %s", location, v.ErrorKind.LocalizedString(printer)))
			return
		}
		for _, cause := range v.Causes {
			walk(cause)
		}
	}
	walk(ve)

	if len(issues) == 0 {
		issues = append(issues, ve.Error())
	}
	return issues
}

// validationResult wraps schema violations into the tool-level error
// envelope; the model sees validation failures, the protocol does not.
func validationResult(name string, issues []string) *Result {
	var b strings.Builder
	fmt.Fprintf(&b, "Invalid arguments for tool %s:\n", name)
	for _, issue := range issues {
		fmt.Fprintf(&b, "  - %s\n", issue)
	}
	return ErrorResult("%s", strings.TrimRight(b.String(), "\n"))
}
