// Package transport binds the router to the outside world: a streamable
// HTTP transport with resumable SSE, and a line-delimited stdio transport.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpd/internal/jsonrpc"
	"github.com/fyrsmithlabs/mcpd/internal/oauth"
	"github.com/fyrsmithlabs/mcpd/internal/router"
	"github.com/fyrsmithlabs/mcpd/internal/session"
)

// HeaderSessionID is the HTTP header carrying the session identifier.
const HeaderSessionID = "Mcp-Session-Id"

// maxBodySize bounds a single JSON-RPC request body.
const maxBodySize = 4 << 20 // 4MB

// defaultHeartbeat is how often idle SSE streams emit a keepalive comment.
const defaultHeartbeat = 30 * time.Second

// HTTPConfig holds HTTP transport configuration.
type HTTPConfig struct {
	Host        string
	Port        int
	ResourceURL string
	AuthServers []string

	// RequireAuth demands a bearer token on /mcp. Token validation is
	// delegated to the authorization server; this transport only enforces
	// presence and answers with a discovery-bearing challenge.
	RequireAuth bool

	// Heartbeat overrides the SSE keepalive interval. Zero means default.
	Heartbeat time.Duration
}

// HTTPServer serves the MCP protocol over streamable HTTP.
type HTTPServer struct {
	echo     *echo.Echo
	router   *router.Router
	sessions *session.Manager
	store    *oauth.Store
	logger   *zap.Logger
	cfg      HTTPConfig

	heartbeat time.Duration
	draining  atomic.Bool
}

// NewHTTPServer creates an HTTP transport over the given router and
// session manager. A non-nil store mounts the embedded authorization
// server endpoints (/authorize, /token) for deployments without an
// external authorization server.
func NewHTTPServer(cfg HTTPConfig, rt *router.Router, sessions *session.Manager, store *oauth.Store, logger *zap.Logger) (*HTTPServer, error) {
	if rt == nil {
		return nil, fmt.Errorf("router is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &HTTPServer{
		echo:      e,
		router:    rt,
		sessions:  sessions,
		store:     store,
		logger:    logger,
		cfg:       cfg,
		heartbeat: cfg.Heartbeat,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = defaultHeartbeat
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *HTTPServer) registerRoutes() {
	mcp := s.echo.Group("/mcp")
	if s.cfg.RequireAuth {
		mcp.Use(s.requireBearer)
	}
	mcp.POST("", s.handlePost)
	mcp.GET("", s.handleSSE)
	mcp.DELETE("", s.handleDelete)

	s.echo.POST("/api/cancel", s.handleCancel)
	s.echo.GET("/api/health", s.handleHealth)

	s.echo.GET("/.well-known/oauth-authorization-server", s.handleAuthServerMetadata)
	s.echo.GET("/.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata)

	if s.store != nil {
		s.echo.GET("/authorize", s.handleAuthorize)
		s.echo.POST("/token", s.handleToken)
	}

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// SetDraining makes the transport refuse new protocol traffic with 503.
func (s *HTTPServer) SetDraining() {
	s.draining.Store(true)
}

// requireBearer rejects requests without a bearer token, pointing the
// client at the resource metadata document.
func (s *HTTPServer) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		if strings.HasPrefix(auth, "Bearer ") && len(auth) > len("Bearer ") {
			return next(c)
		}

		challenge := oauth.Challenge{
			ResourceMetadataURL: s.metadataURL(),
			Error:               oauth.ErrorInvalidToken,
			ErrorDescription:    "bearer token required",
		}
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge.Header())
		return c.JSON(http.StatusUnauthorized, oauth.ErrorResponse{
			Error:            oauth.ErrorInvalidToken,
			ErrorDescription: "bearer token required",
		})
	}
}

// handlePost processes a single JSON-RPC request frame.
//
// An initialize request without a session header creates a session; the id
// comes back in the Mcp-Session-Id response header. Every other request
// must present a known session id.
func (s *HTTPServer) handlePost(c echo.Context) error {
	if s.draining.Load() {
		return s.unavailable(c)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	// Frames that fail to decode are an HTTP-level 400, not a protocol
	// response; they never reach a session or its replay log.
	if _, derr := jsonrpc.Decode(body); derr != nil {
		encoded, err := jsonrpc.Encode(jsonrpc.NewDecodeError(derr))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "encoding failure")
		}
		return c.JSONBlob(http.StatusBadRequest, encoded)
	}

	sess, httpErr := s.resolveSession(c, body)
	if httpErr != nil {
		return httpErr
	}

	resp := s.router.Handle(c.Request().Context(), sess, body)
	if resp == nil {
		// Notification: acknowledged without a body.
		return c.NoContent(http.StatusAccepted)
	}

	encoded, err := jsonrpc.Encode(resp)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "encoding failure")
	}

	// Buffer the response in the replay log so a reconnecting SSE client
	// can recover it by Last-Event-ID.
	sess.Stream.Send("message", string(encoded))

	return c.JSONBlob(http.StatusOK, encoded)
}

// resolveSession maps the Mcp-Session-Id header to a session, creating one
// for initialize requests.
func (s *HTTPServer) resolveSession(c echo.Context, body []byte) (*session.Session, error) {
	sid := c.Request().Header.Get(HeaderSessionID)
	if sid != "" {
		sess, ok := s.sessions.Get(sid)
		if !ok {
			return nil, s.unknownSession(c, sid)
		}
		return sess, nil
	}

	if peekMethod(body) != "initialize" {
		return nil, s.unknownSession(c, "")
	}

	sess, err := s.sessions.Create()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}
	c.Response().Header().Set(HeaderSessionID, sess.ID)
	return sess, nil
}

// handleSSE opens the session's event stream, replaying missed events when
// the client presents a Last-Event-ID.
func (s *HTTPServer) handleSSE(c echo.Context) error {
	if s.draining.Load() {
		return s.unavailable(c)
	}

	sid := c.Request().Header.Get(HeaderSessionID)
	sess, ok := s.sessions.Get(sid)
	if !ok {
		return s.unknownSession(c, sid)
	}

	lastEventID := c.Request().Header.Get("Last-Event-ID")
	replay, ch, err := sess.Stream.Attach(lastEventID)
	if err != nil {
		if err == session.ErrReplayImpossible {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "requested events are no longer available; re-initialize the session",
			})
		}
		return echo.NewHTTPError(http.StatusBadRequest, "malformed Last-Event-ID")
	}
	defer sess.Stream.Detach(ch)

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Response().WriteHeader(http.StatusOK)

	for _, ev := range replay {
		writeEvent(c.Response(), ev)
	}
	c.Response().Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				// Replaced by a newer connection or dropped as too slow.
				return nil
			}
			writeEvent(c.Response(), ev)
			c.Response().Flush()

		case <-ticker.C:
			// Keepalive to defeat proxy idle timeouts.
			fmt.Fprintf(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// handleDelete tears the presented session down.
func (s *HTTPServer) handleDelete(c echo.Context) error {
	sid := c.Request().Header.Get(HeaderSessionID)
	if sid == "" || !s.sessions.Delete(c.Request().Context(), sid) {
		return s.unknownSession(c, sid)
	}
	return c.NoContent(http.StatusNoContent)
}

// CancelRequest is the body of POST /api/cancel.
type CancelRequest struct {
	SessionID string `json:"sessionId"`
}

// CancelResponse is the response body of POST /api/cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// handleCancel aborts all in-flight requests of a session. Fire and
// forget: unknown or idle sessions report cancelled=false with 200.
func (s *HTTPServer) handleCancel(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cancelled := false
	if sess, ok := s.sessions.Get(req.SessionID); ok {
		cancelled = sess.CancelInFlight() > 0
	}
	return c.JSON(http.StatusOK, CancelResponse{Cancelled: cancelled})
}

// HealthResponse is the response body for GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *HTTPServer) handleAuthServerMetadata(c echo.Context) error {
	issuer := s.issuer()
	return c.JSON(http.StatusOK, oauth.NewAuthorizationServerMetadata(issuer))
}

func (s *HTTPServer) handleProtectedResourceMetadata(c echo.Context) error {
	return c.JSON(http.StatusOK,
		oauth.NewProtectedResourceMetadata(s.cfg.ResourceURL, s.cfg.AuthServers))
}

// issuer picks the authorization server issuer: the first configured auth
// server, else this server's own origin.
func (s *HTTPServer) issuer() string {
	if len(s.cfg.AuthServers) > 0 {
		return s.cfg.AuthServers[0]
	}
	return s.origin()
}

// origin derives scheme://host from the resource URL.
func (s *HTTPServer) origin() string {
	u, err := url.Parse(s.cfg.ResourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
	}
	return u.Scheme + "://" + u.Host
}

// metadataURL is where 401 challenges point clients for discovery.
func (s *HTTPServer) metadataURL() string {
	return s.origin() + "/.well-known/oauth-protected-resource"
}

// unknownSession answers 404 with the JSON-RPC equivalent error.
func (s *HTTPServer) unknownSession(c echo.Context, sid string) error {
	s.logger.Debug("unknown session", zap.String("session_id", sid))
	encoded, err := jsonrpc.Encode(jsonrpc.NewError(nil, jsonrpc.SessionError,
		"unknown or missing session", map[string]any{"header": HeaderSessionID}))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	return c.JSONBlob(http.StatusNotFound, encoded)
}

// unavailable answers 503 while the server drains.
func (s *HTTPServer) unavailable(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]string{
		"error": "server is shutting down",
	})
}

// writeEvent renders one SSE frame.
func writeEvent(w io.Writer, ev session.Event) {
	fmt.Fprintf(w, "id: %s\n", ev.WireID())
	if ev.Name != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Name)
	}
	if ev.Retry > 0 {
		fmt.Fprintf(w, "retry: %d\n", ev.Retry)
	}
	fmt.Fprintf(w, "data: %s\n\n", ev.Data)
}

// peekMethod extracts the method of a frame without full validation.
func peekMethod(body []byte) string {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Method
}

// Start starts the HTTP server. Blocks until Shutdown or failure.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting http transport", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http transport")
	return s.echo.Shutdown(ctx)
}
