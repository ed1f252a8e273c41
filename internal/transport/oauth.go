package transport

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpd/internal/oauth"
)

// Token lifetimes for the embedded authorization server.
const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

// TokenResponse is the RFC 6749 token endpoint success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// handleAuthorize implements the embedded authorization endpoint.
//
// There is no identity plane here: every well-formed PKCE request is
// approved and redirected back with a single-use code. Deployments that
// need real user consent configure an external authorization server
// instead.
func (s *HTTPServer) handleAuthorize(c echo.Context) error {
	q := c.QueryParams()

	redirectURI := q.Get("redirect_uri")
	target, err := url.Parse(redirectURI)
	if err != nil || !target.IsAbs() {
		return c.JSON(http.StatusBadRequest, oauth.ErrorResponse{
			Error:            oauth.ErrorInvalidRequest,
			ErrorDescription: "redirect_uri must be an absolute URL",
		})
	}

	// From here on, errors go back to the client via the redirect.
	fail := func(code, description string) error {
		v := target.Query()
		v.Set("error", code)
		v.Set("error_description", description)
		if state := q.Get("state"); state != "" {
			v.Set("state", state)
		}
		target.RawQuery = v.Encode()
		return c.Redirect(http.StatusFound, target.String())
	}

	if q.Get("response_type") != "code" {
		return fail("unsupported_response_type", "only response_type=code is supported")
	}
	if q.Get("client_id") == "" {
		return fail(oauth.ErrorInvalidRequest, "client_id is required")
	}
	if q.Get("code_challenge") == "" {
		return fail(oauth.ErrorInvalidRequest, "PKCE code_challenge is required")
	}
	if method := q.Get("code_challenge_method"); method != "S256" {
		return fail(oauth.ErrorInvalidRequest, "code_challenge_method must be S256")
	}

	entry, err := s.store.StoreAuthorizationCode(oauth.CodeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         redirectURI,
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: "S256",
		Subject:             q.Get("client_id"), // no user identity plane
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
	})
	if err != nil {
		s.logger.Error("failed to issue authorization code", zap.Error(err))
		return fail(oauth.ErrorServerError, "failed to issue code")
	}

	v := target.Query()
	v.Set("code", entry.Code)
	if entry.State != "" {
		v.Set("state", entry.State)
	}
	target.RawQuery = v.Encode()
	return c.Redirect(http.StatusFound, target.String())
}

// handleToken implements the embedded token endpoint: authorization_code
// with mandatory PKCE, refresh_token with rotation, and client_credentials.
func (s *HTTPServer) handleToken(c echo.Context) error {
	switch c.FormValue("grant_type") {
	case "authorization_code":
		return s.exchangeCode(c)
	case "refresh_token":
		return s.refreshGrant(c)
	case "client_credentials":
		return s.clientCredentialsGrant(c)
	default:
		return c.JSON(http.StatusBadRequest, oauth.ErrorResponse{
			Error:            "unsupported_grant_type",
			ErrorDescription: "supported grants: authorization_code, refresh_token, client_credentials",
		})
	}
}

func (s *HTTPServer) exchangeCode(c echo.Context) error {
	// Consumption is unconditional: a failed verification still burns the
	// code, so a stolen code cannot be retried.
	entry := s.store.ConsumeAuthorizationCode(c.FormValue("code"))
	if entry == nil {
		return tokenError(c, "invalid_grant", "unknown or expired authorization code")
	}
	if entry.ClientID != c.FormValue("client_id") {
		return tokenError(c, "invalid_grant", "client_id does not match the authorization code")
	}
	if entry.RedirectURI != c.FormValue("redirect_uri") {
		return tokenError(c, "invalid_grant", "redirect_uri does not match the authorization code")
	}
	ok, err := oauth.VerifyCodeChallenge(c.FormValue("code_verifier"), entry.CodeChallenge, entry.CodeChallengeMethod)
	if err != nil || !ok {
		return tokenError(c, "invalid_grant", "PKCE verification failed")
	}

	return s.issueTokens(c, entry.ClientID, entry.Subject, entry.Scope, true)
}

func (s *HTTPServer) refreshGrant(c echo.Context) error {
	old := s.store.GetRefreshToken(c.FormValue("refresh_token"))
	if old == nil {
		return tokenError(c, "invalid_grant", "unknown or expired refresh token")
	}
	if old.ClientID != c.FormValue("client_id") {
		return tokenError(c, "invalid_grant", "client_id does not match the refresh token")
	}

	// Rotation: the presented token is dead the moment it is used.
	s.store.RevokeRefreshToken(old.Token)
	return s.issueTokens(c, old.ClientID, old.Subject, old.Scope, true)
}

func (s *HTTPServer) clientCredentialsGrant(c echo.Context) error {
	clientID := c.FormValue("client_id")
	if clientID == "" {
		return tokenError(c, oauth.ErrorInvalidRequest, "client_id is required")
	}
	return s.issueTokens(c, clientID, clientID, c.FormValue("scope"), false)
}

// issueTokens mints an opaque access token and, for interactive grants, a
// refresh token.
func (s *HTTPServer) issueTokens(c echo.Context, clientID, subject, scope string, withRefresh bool) error {
	access, err := oauth.NewOpaqueToken()
	if err != nil {
		s.logger.Error("failed to mint access token", zap.Error(err))
		return tokenError(c, oauth.ErrorServerError, "failed to issue token")
	}

	resp := TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessTokenTTL.Seconds()),
		Scope:       scope,
	}

	if withRefresh {
		refresh, err := s.store.StoreRefreshToken(clientID, subject, scope, refreshTokenTTL)
		if err != nil {
			s.logger.Error("failed to mint refresh token", zap.Error(err))
			return tokenError(c, oauth.ErrorServerError, "failed to issue token")
		}
		resp.RefreshToken = refresh.Token
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, resp)
}

func tokenError(c echo.Context, code, description string) error {
	return c.JSON(http.StatusBadRequest, oauth.ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
