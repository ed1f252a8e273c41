// Package lifecycle implements the MCP initialization state machine and
// capability negotiation. Each session owns one Manager; the router
// consults it before dispatching any method.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/mcpd/internal/jsonrpc"
)

// State is a session's position in the initialization handshake.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateInitialized   State = "initialized"
	StateShutdown      State = "shutdown"
)

// LatestProtocolVersion is the newest protocol revision this server speaks.
const LatestProtocolVersion = "2025-11-25"

// supportedVersions lists every revision the server can negotiate,
// newest first.
var supportedVersions = []string{
	"2025-11-25",
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo identifies this server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
}

// Capabilities is the capability map exchanged during initialize. Non-empty
// members advertise support; the experimental map carries extension
// negotiation.
type Capabilities struct {
	Tools        map[string]any `json:"tools,omitempty"`
	Completions  map[string]any `json:"completions,omitempty"`
	Logging      map[string]any `json:"logging,omitempty"`
	Experimental map[string]any `json:"experimental,omitempty"`
}

// InitializeResult is the response to a successful initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// Manager tracks one session's lifecycle state.
type Manager struct {
	mu    sync.Mutex
	state State

	negotiatedVersion  string
	clientInfo         ClientInfo
	clientCapabilities Capabilities
}

// NewManager creates a manager in the uninitialized state.
func NewManager() *Manager {
	return &Manager{state: StateUninitialized}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// NegotiatedVersion returns the protocol version agreed at initialize, or
// empty before the handshake.
func (m *Manager) NegotiatedVersion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.negotiatedVersion
}

// ClientInfo returns the client identity captured at initialize.
func (m *Manager) ClientInfo() ClientInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientInfo
}

// ClientCapabilities returns the capabilities the client declared.
func (m *Manager) ClientCapabilities() Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientCapabilities
}

// Gate decides whether a method may run in the current state.
//
// Returns nil when the method is allowed, or the error detail to send back.
// In uninitialized, only initialize and ping pass; a repeated initialize in
// any later state is an invalid request.
func (m *Manager) Gate(method string) *jsonrpc.ErrorDetail {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateUninitialized:
		if method == "initialize" || method == "ping" {
			return nil
		}
		return &jsonrpc.ErrorDetail{
			Code:    jsonrpc.ServerNotInitialized,
			Message: "Server not initialized",
			Data:    map[string]any{"method": method},
		}

	case StateInitializing:
		switch method {
		case "initialize":
			return &jsonrpc.ErrorDetail{
				Code:    jsonrpc.InvalidRequest,
				Message: "initialize already in progress",
			}
		case "notifications/initialized", "ping":
			return nil
		}
		return &jsonrpc.ErrorDetail{
			Code:    jsonrpc.ServerNotInitialized,
			Message: "Server not initialized",
			Data:    map[string]any{"method": method},
		}

	case StateInitialized:
		if method == "initialize" {
			return &jsonrpc.ErrorDetail{
				Code:    jsonrpc.InvalidRequest,
				Message: "server already initialized",
			}
		}
		return nil

	case StateShutdown:
		return &jsonrpc.ErrorDetail{
			Code:    jsonrpc.ServerShuttingDown,
			Message: "server is shutting down",
		}
	}

	return &jsonrpc.ErrorDetail{
		Code:    jsonrpc.InternalError,
		Message: fmt.Sprintf("unknown lifecycle state %q", m.state),
	}
}

// Initialize performs the uninitialized -> initializing transition and
// negotiates the protocol version: the client's version is echoed when the
// server knows it, otherwise the server's latest.
func (m *Manager) Initialize(params InitializeParams, serverCaps Capabilities, info ServerInfo) (*InitializeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUninitialized {
		return nil, fmt.Errorf("initialize in state %s", m.state)
	}

	m.state = StateInitializing
	m.negotiatedVersion = negotiateVersion(params.ProtocolVersion)
	m.clientInfo = params.ClientInfo
	m.clientCapabilities = params.Capabilities

	return &InitializeResult{
		ProtocolVersion: m.negotiatedVersion,
		Capabilities:    serverCaps,
		ServerInfo:      info,
	}, nil
}

// Initialized performs the initializing -> initialized transition, driven
// by the notifications/initialized notification.
func (m *Manager) Initialized() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateInitializing {
		return fmt.Errorf("initialized notification in state %s", m.state)
	}
	m.state = StateInitialized
	return nil
}

// Shutdown moves the session to its terminal state. Idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.state = StateShutdown
	m.mu.Unlock()
}

// negotiateVersion echoes a known client version, else the server's latest.
func negotiateVersion(requested string) string {
	for _, v := range supportedVersions {
		if requested == v {
			return v
		}
	}
	return LatestProtocolVersion
}
