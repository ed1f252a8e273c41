package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultCodeTTL bounds authorization code lifetime per OAuth 2.1
	// (codes SHOULD expire within 10 minutes).
	DefaultCodeTTL = 10 * time.Minute

	// sweepInterval is how often expired entries are purged.
	sweepInterval = 60 * time.Second

	// secretBytes is the entropy of codes and tokens (256 bits).
	secretBytes = 32
)

// AuthorizationCode binds a single-use code to its authorization request.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Subject             string
	Scope               string
	State               string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// RefreshToken is a multi-use token valid until revoked or expired.
type RefreshToken struct {
	Token     string
	ClientID  string
	Subject   string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CodeRequest carries the parameters bound to a new authorization code.
type CodeRequest struct {
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Subject             string
	Scope               string
	State               string
}

// Store holds authorization codes and refresh tokens in memory.
//
// A single mutex guards both maps; the operation rate on the authorization
// plane is low enough that finer locking buys nothing. A background sweeper
// purges expired entries every minute.
type Store struct {
	mu      sync.Mutex
	codes   map[string]*AuthorizationCode
	tokens  map[string]*RefreshToken
	codeTTL time.Duration
	logger  *zap.Logger

	now func() time.Time // test hook
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.codeTTL = ttl }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty in-memory store.
func NewStore(logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		codes:   make(map[string]*AuthorizationCode),
		tokens:  make(map[string]*RefreshToken),
		codeTTL: DefaultCodeTTL,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreAuthorizationCode issues a fresh 256-bit code bound to the request.
func (s *Store) StoreAuthorizationCode(req CodeRequest) (*AuthorizationCode, error) {
	code, err := randomSecret()
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &AuthorizationCode{
		Code:                code,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Subject:             req.Subject,
		Scope:               req.Scope,
		State:               req.State,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.codeTTL),
	}

	s.mu.Lock()
	s.codes[code] = entry
	s.mu.Unlock()

	return entry, nil
}

// ConsumeAuthorizationCode looks up a code and deletes it unconditionally.
//
// Single-use-on-attempt: the entry is removed whether or not the caller's
// exchange subsequently succeeds, which is what prevents code replay after a
// partially failed exchange. Returns nil for unknown or expired codes.
func (s *Store) ConsumeAuthorizationCode(code string) *AuthorizationCode {
	s.mu.Lock()
	entry, ok := s.codes[code]
	if ok {
		delete(s.codes, code)
	}
	s.mu.Unlock()

	if !ok || s.now().After(entry.ExpiresAt) {
		return nil
	}
	return entry
}

// StoreRefreshToken issues a fresh 256-bit refresh token.
func (s *Store) StoreRefreshToken(clientID, subject, scope string, ttl time.Duration) (*RefreshToken, error) {
	token, err := randomSecret()
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &RefreshToken{
		Token:     token,
		ClientID:  clientID,
		Subject:   subject,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.tokens[token] = entry
	s.mu.Unlock()

	return entry, nil
}

// GetRefreshToken returns a live token, lazily deleting it if expired.
func (s *Store) GetRefreshToken(token string) *RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[token]
	if !ok {
		return nil
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.tokens, token)
		return nil
	}
	return entry
}

// RevokeRefreshToken deletes a token unconditionally.
func (s *Store) RevokeRefreshToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Sweep removes all expired codes and tokens. Returns counts removed.
func (s *Store) Sweep() (codes, tokens int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.codes {
		if now.After(v.ExpiresAt) {
			delete(s.codes, k)
			codes++
		}
	}
	for k, v := range s.tokens {
		if now.After(v.ExpiresAt) {
			delete(s.tokens, k)
			tokens++
		}
	}
	return codes, tokens
}

// RunSweeper purges expired entries every minute until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			codes, tokens := s.Sweep()
			if codes > 0 || tokens > 0 {
				s.logger.Debug("oauth store sweep",
					zap.Int("expired_codes", codes),
					zap.Int("expired_tokens", tokens))
			}
		case <-ctx.Done():
			return
		}
	}
}

// NewOpaqueToken mints a 256-bit opaque bearer token. The store does not
// track access tokens; validation is out of scope for the in-memory plane.
func NewOpaqueToken() (string, error) {
	return randomSecret()
}

// randomSecret returns 256 bits of entropy as unpadded base64url.
func randomSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
