// Package oauth implements the authorization plane of the server: PKCE
// generation and verification, an in-memory store for authorization codes
// and refresh tokens, and the RFC 8414 / RFC 9728 discovery documents.
//
// The store is explicitly non-production: all state is process-local and
// lost on restart. Any persistent replacement must preserve the
// single-use-on-attempt contract for authorization codes.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// verifierCharset is the 66-character unreserved URI set from RFC 7636 §4.1.
const verifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const (
	// DefaultVerifierLength balances entropy against URL length.
	DefaultVerifierLength = 64

	minVerifierLength = 43
	maxVerifierLength = 128
)

// Sentinel errors for PKCE validation.
var (
	ErrVerifierLength    = fmt.Errorf("code verifier length must be %d-%d characters", minVerifierLength, maxVerifierLength)
	ErrVerifierCharset   = errors.New("code verifier contains characters outside the unreserved set")
	ErrPlainNotSupported = errors.New(`code challenge method "plain" is not supported, use "S256"`)
	ErrUnknownMethod     = errors.New("unknown code challenge method")
)

// GenerateCodeVerifier produces a cryptographically random verifier of the
// given length, drawn from the unreserved URI character set.
//
// Rejection sampling keeps the selection uniform across the 66-character
// alphabet.
func GenerateCodeVerifier(length int) (string, error) {
	if length < minVerifierLength || length > maxVerifierLength {
		return "", ErrVerifierLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading entropy: %w", err)
		}
		for _, b := range buf {
			// 198 = 3 * 66: the largest multiple of the alphabet size
			// below 256, so modulo stays unbiased.
			if b >= 198 {
				continue
			}
			out = append(out, verifierCharset[int(b)%len(verifierCharset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateCodeChallenge derives the S256 challenge for a verifier:
// base64url(SHA-256(ASCII(verifier))) without padding.
func GenerateCodeChallenge(verifier string) (string, error) {
	if err := validateVerifier(verifier); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// VerifyCodeChallenge checks a verifier against a previously issued
// challenge. Only the S256 method is accepted; "plain" is rejected outright
// per MCP authorization policy. The comparison is constant-time.
func VerifyCodeChallenge(verifier, challenge, method string) (bool, error) {
	switch method {
	case "S256":
	case "plain":
		return false, ErrPlainNotSupported
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	computed, err := GenerateCodeChallenge(verifier)
	if err != nil {
		return false, err
	}
	if len(computed) != len(challenge) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1, nil
}

// validateVerifier checks length and charset per RFC 7636.
func validateVerifier(verifier string) error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return ErrVerifierLength
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return ErrVerifierCharset
		}
	}
	return nil
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
