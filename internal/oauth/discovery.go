package oauth

import (
	"fmt"
	"strings"
)

// AuthorizationServerMetadata is the RFC 8414 discovery document served at
// /.well-known/oauth-authorization-server.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// ProtectedResourceMetadata is the RFC 9728 discovery document served at
// /.well-known/oauth-protected-resource.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

// DefaultScopes are the scopes the resource server understands.
var DefaultScopes = []string{"tools:read", "tools:execute", "logging:write"}

// NewAuthorizationServerMetadata builds the RFC 8414 document for an issuer.
func NewAuthorizationServerMetadata(issuer string) AuthorizationServerMetadata {
	issuer = strings.TrimSuffix(issuer, "/")
	return AuthorizationServerMetadata{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/authorize",
		TokenEndpoint:         issuer + "/token",
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic",
			"client_secret_post",
			"none",
		},
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{"authorization_code", "refresh_token", "client_credentials"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
}

// NewProtectedResourceMetadata builds the RFC 9728 document.
func NewProtectedResourceMetadata(resource string, authServers []string) ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               resource,
		AuthorizationServers:   authServers,
		ScopesSupported:        DefaultScopes,
		BearerMethodsSupported: []string{"header"},
	}
}

// Closed error vocabulary for OAuth endpoint responses. Internal error
// details never reach a response body.
const (
	ErrorInvalidToken      = "invalid_token"
	ErrorInsufficientScope = "insufficient_scope"
	ErrorInvalidRequest    = "invalid_request"
	ErrorServerError       = "server_error"
	ErrorUnauthorized      = "unauthorized"
)

// ErrorResponse is the JSON body of a failed OAuth endpoint call.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Challenge describes a WWW-Authenticate header for a 401 response.
type Challenge struct {
	ResourceMetadataURL string
	Realm               string
	Error               string
	ErrorDescription    string
	Scope               string
}

// Header renders the Bearer challenge, RFC 6750 / RFC 9728 style.
//
// resource_metadata always comes first so clients can discover the
// authorization server without parsing the rest.
func (c Challenge) Header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bearer resource_metadata=%q", c.ResourceMetadataURL)
	if c.Realm != "" {
		fmt.Fprintf(&b, ", realm=%q", c.Realm)
	}
	if c.Error != "" {
		fmt.Fprintf(&b, ", error=%q", c.Error)
	}
	if c.ErrorDescription != "" {
		fmt.Fprintf(&b, ", error_description=%q", c.ErrorDescription)
	}
	if c.Scope != "" {
		fmt.Fprintf(&b, ", scope=%q", c.Scope)
	}
	return b.String()
}
