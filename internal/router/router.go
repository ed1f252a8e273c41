// Package router is the single dispatch point for inbound JSON-RPC frames:
// lifecycle gating, per-method param decoding, and the error envelope
// policy. Transports hand it raw frames and forward whatever it returns.
package router

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpd/internal/completion"
	"github.com/fyrsmithlabs/mcpd/internal/extension"
	"github.com/fyrsmithlabs/mcpd/internal/jsonrpc"
	"github.com/fyrsmithlabs/mcpd/internal/lifecycle"
	"github.com/fyrsmithlabs/mcpd/internal/mcplog"
	"github.com/fyrsmithlabs/mcpd/internal/pagination"
	"github.com/fyrsmithlabs/mcpd/internal/progress"
	"github.com/fyrsmithlabs/mcpd/internal/session"
	"github.com/fyrsmithlabs/mcpd/internal/tool"
)

// Router dispatches decoded frames to the capability handlers.
type Router struct {
	serverInfo  lifecycle.ServerInfo
	tools       *tool.Registry
	executor    *tool.Executor
	completions *completion.Handler
	extensions  *extension.Registry
	pageSize    int
	logger      *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithPageSize sets the tools/list page size.
func WithPageSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// New creates a router over the given capability handlers.
func New(info lifecycle.ServerInfo, tools *tool.Registry, executor *tool.Executor,
	completions *completion.Handler, extensions *extension.Registry,
	logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		serverInfo:  info,
		tools:       tools,
		executor:    executor,
		completions: completions,
		extensions:  extensions,
		pageSize:    pagination.DefaultPageSize,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound frame for a session.
//
// Returns the response to send back, or nil when the frame was a
// notification or a client response; those never produce output.
func (r *Router) Handle(ctx context.Context, sess *session.Session, raw []byte) *jsonrpc.Response {
	msg, err := jsonrpc.Decode(raw)
	if err != nil {
		return jsonrpc.NewDecodeError(err)
	}

	if msg.IsResponse() {
		// Responses to server-initiated requests; nothing to route yet.
		return nil
	}

	sess.Touch()

	if detail := sess.Lifecycle.Gate(msg.Method); detail != nil {
		if msg.IsNotification() {
			r.logger.Debug("notification rejected by lifecycle gate",
				zap.String("method", msg.Method),
				zap.String("session_id", sess.ID))
			return nil
		}
		return jsonrpc.NewError(msg.ID, detail.Code, detail.Message, detail.Data)
	}

	return r.dispatch(ctx, sess, msg)
}

// dispatch routes a gated frame by method, converting panics into
// internal-error responses for requests and swallowing them for
// notifications. Stack traces stay in the server log.
func (r *Router) dispatch(ctx context.Context, sess *session.Session, msg *jsonrpc.Message) (resp *jsonrpc.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panic",
				zap.String("method", msg.Method),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			if msg.IsRequest() {
				resp = jsonrpc.NewError(msg.ID, jsonrpc.InternalError, "Internal error", nil)
			}
		}
	}()

	// Notifications never produce responses: the only one the server acts
	// on is initialized; everything else, including request-only methods
	// sent without an id, is logged and swallowed.
	if msg.IsNotification() {
		switch msg.Method {
		case "notifications/initialized":
			if err := sess.Lifecycle.Initialized(); err != nil {
				r.logger.Warn("unexpected initialized notification",
					zap.String("session_id", sess.ID), zap.Error(err))
			}
		default:
			r.logger.Debug("notification ignored",
				zap.String("method", msg.Method),
				zap.String("session_id", sess.ID))
		}
		return nil
	}

	switch msg.Method {
	case "initialize":
		return r.handleInitialize(ctx, sess, msg)
	case "ping":
		return jsonrpc.NewResponse(msg.ID, map[string]any{})
	case "tools/list":
		return r.handleToolsList(msg)
	case "tools/call":
		return r.handleToolsCall(ctx, sess, msg)
	case "completion/complete":
		return r.handleComplete(ctx, msg)
	case "logging/setLevel":
		return r.handleSetLevel(sess, msg)
	}
	return jsonrpc.NewMethodNotFound(msg.ID, msg.Method)
}

func (r *Router) handleInitialize(ctx context.Context, sess *session.Session, msg *jsonrpc.Message) *jsonrpc.Response {
	var params lifecycle.InitializeParams
	if resp := decodeParams(msg, &params); resp != nil {
		return resp
	}

	serverCaps := lifecycle.Capabilities{
		Tools:       map[string]any{},
		Completions: map[string]any{},
		Logging:     map[string]any{},
	}
	if adv := r.extensions.Advertised(); len(adv) > 0 {
		serverCaps.Experimental = adv
	}

	result, err := sess.Lifecycle.Initialize(params, serverCaps, r.serverInfo)
	if err != nil {
		return jsonrpc.NewError(msg.ID, jsonrpc.InvalidRequest, err.Error(), nil)
	}

	sess.Extensions = r.extensions.Negotiate(ctx, params.Capabilities.Experimental)
	return jsonrpc.NewResponse(msg.ID, result)
}

func (r *Router) handleToolsList(msg *jsonrpc.Message) *jsonrpc.Response {
	var params struct {
		Cursor string `json:"cursor"`
	}
	if resp := decodeParams(msg, &params); resp != nil {
		return resp
	}

	page, err := pagination.Paginate(r.tools.Definitions(), params.Cursor, r.pageSize)
	if err != nil {
		return jsonrpc.NewError(msg.ID, jsonrpc.InvalidParams, err.Error(), nil)
	}

	result := struct {
		Tools      []tool.Definition `json:"tools"`
		NextCursor string            `json:"nextCursor,omitempty"`
	}{Tools: page.Items, NextCursor: page.NextCursor}
	return jsonrpc.NewResponse(msg.ID, result)
}

func (r *Router) handleToolsCall(ctx context.Context, sess *session.Session, msg *jsonrpc.Message) *jsonrpc.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		Meta      struct {
			ProgressToken any `json:"progressToken"`
		} `json:"_meta"`
	}
	if resp := decodeParams(msg, &params); resp != nil {
		return resp
	}
	if params.Name == "" {
		return jsonrpc.NewError(msg.ID, jsonrpc.InvalidParams, "tool name is required", nil)
	}

	reqCtx, release := sess.TrackRequest(ctx)
	defer release()

	send := func(p progress.Params) {
		sess.Notify(progress.Method, p)
	}

	result, err := r.executor.Execute(reqCtx, params.Name, params.Arguments, params.Meta.ProgressToken, send)
	if err != nil {
		if errors.Is(err, tool.ErrToolNotFound) {
			return jsonrpc.NewError(msg.ID, jsonrpc.MethodNotFound, "tool not found: "+params.Name,
				map[string]any{"tool": params.Name})
		}
		return jsonrpc.NewError(msg.ID, jsonrpc.InternalError, "Internal error", nil)
	}
	return jsonrpc.NewResponse(msg.ID, result)
}

func (r *Router) handleComplete(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Response {
	var params struct {
		Ref      completion.Ref      `json:"ref"`
		Argument completion.Argument `json:"argument"`
	}
	if resp := decodeParams(msg, &params); resp != nil {
		return resp
	}
	if params.Ref.Type == "" {
		return jsonrpc.NewError(msg.ID, jsonrpc.InvalidParams, "ref.type is required", nil)
	}

	result, err := r.completions.Complete(ctx, params.Ref, params.Argument)
	if err != nil {
		r.logger.Warn("completion provider failed",
			zap.String("ref_type", params.Ref.Type),
			zap.String("ref_name", params.Ref.Name),
			zap.Error(err))
		return jsonrpc.NewError(msg.ID, jsonrpc.InternalError, "completion provider failed", nil)
	}

	return jsonrpc.NewResponse(msg.ID, struct {
		Completion completion.Result `json:"completion"`
	}{Completion: result})
}

func (r *Router) handleSetLevel(sess *session.Session, msg *jsonrpc.Message) *jsonrpc.Response {
	var params struct {
		Level string `json:"level"`
	}
	if resp := decodeParams(msg, &params); resp != nil {
		return resp
	}

	if err := sess.Log.SetLevel(mcplog.Level(params.Level)); err != nil {
		return jsonrpc.NewError(msg.ID, jsonrpc.InvalidParams, err.Error(),
			map[string]any{"level": params.Level})
	}
	return jsonrpc.NewResponse(msg.ID, map[string]any{})
}

// decodeParams unmarshals msg.Params into target, returning an
// invalid-params response on failure. Absent params decode as the zero
// value.
func decodeParams(msg *jsonrpc.Message, target any) *jsonrpc.Response {
	if len(msg.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Params, target); err != nil {
		return jsonrpc.NewError(msg.ID, jsonrpc.InvalidParams, "Invalid params",
			map[string]any{"error": err.Error()})
	}
	return nil
}
