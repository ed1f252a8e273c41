package oauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier(t *testing.T) {
	v, err := GenerateCodeVerifier(DefaultVerifierLength)
	require.NoError(t, err)
	assert.Len(t, v, DefaultVerifierLength)

	for i := 0; i < len(v); i++ {
		assert.True(t, strings.ContainsRune(verifierCharset, rune(v[i])),
			"character %q outside unreserved set", v[i])
	}
}

func TestGenerateCodeVerifierLengthBounds(t *testing.T) {
	for _, length := range []int{43, 64, 128} {
		v, err := GenerateCodeVerifier(length)
		require.NoError(t, err)
		assert.Len(t, v, length)
	}
	for _, length := range []int{0, 42, 129, -1} {
		_, err := GenerateCodeVerifier(length)
		assert.ErrorIs(t, err, ErrVerifierLength, "length %d", length)
	}
}

func TestGenerateCodeVerifierIsRandom(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		v, err := GenerateCodeVerifier(43)
		require.NoError(t, err)
		assert.False(t, seen[v], "duplicate verifier generated")
		seen[v] = true
	}
}

func TestGenerateCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B test vector.
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	const want = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	challenge, err := GenerateCodeChallenge(verifier)
	require.NoError(t, err)
	assert.Equal(t, want, challenge)

	// Pure: same input, same output.
	again, err := GenerateCodeChallenge(verifier)
	require.NoError(t, err)
	assert.Equal(t, challenge, again)
}

func TestGenerateCodeChallengeRejectsInvalidVerifier(t *testing.T) {
	_, err := GenerateCodeChallenge("too-short")
	assert.ErrorIs(t, err, ErrVerifierLength)

	bad := strings.Repeat("a", 42) + "!"
	_, err = GenerateCodeChallenge(bad)
	assert.ErrorIs(t, err, ErrVerifierCharset)
}

func TestVerifyCodeChallenge(t *testing.T) {
	verifier, err := GenerateCodeVerifier(64)
	require.NoError(t, err)
	challenge, err := GenerateCodeChallenge(verifier)
	require.NoError(t, err)

	ok, err := VerifyCodeChallenge(verifier, challenge, "S256")
	require.NoError(t, err)
	assert.True(t, ok)

	// Any other verifier must fail against the same challenge.
	other, err := GenerateCodeVerifier(64)
	require.NoError(t, err)
	ok, err = VerifyCodeChallenge(other, challenge, "S256")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyCodeChallengeRejectsPlain(t *testing.T) {
	verifier, _ := GenerateCodeVerifier(64)
	_, err := VerifyCodeChallenge(verifier, verifier, "plain")
	assert.ErrorIs(t, err, ErrPlainNotSupported)

	_, err = VerifyCodeChallenge(verifier, verifier, "S512")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}
