package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParseRoundtrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	encoded, issued, err := issuer.Issue("alice")
	require.NoError(t, err)
	require.NotEmpty(t, encoded)
	require.NotEmpty(t, issued.TokenID)

	parsed, err := issuer.ParseAndVerify(encoded)
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Subject)
	assert.Equal(t, issued.TokenID, parsed.TokenID)
	assert.WithinDuration(t, issued.ExpiresAt, parsed.ExpiresAt, time.Second)
}

func TestFreshTokenIDsAreUnique(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	_, first, err := issuer.Issue("alice")
	require.NoError(t, err)
	_, second, err := issuer.Issue("alice")
	require.NoError(t, err)

	assert.NotEqual(t, first.TokenID, second.TokenID)
}

func TestParseExpiredToken(t *testing.T) {
	expired := &TokenIssuer{secret: []byte("secret"), ttl: -time.Minute}
	encoded, _, err := expired.Issue("alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret", time.Hour).ParseAndVerify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseWrongSecret(t *testing.T) {
	encoded, _, err := NewTokenIssuer("secret", time.Hour).Issue("alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("other-secret", time.Hour).ParseAndVerify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseMalformedToken(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	for _, tokenStr := range []string{"", "garbage", "a.b.c"} {
		_, err := issuer.ParseAndVerify(tokenStr)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tokenStr)
	}
}

func TestParseRejectsWrongTokenType(t *testing.T) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"jti": "some-id",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"typ": "refresh",
	})
	encoded, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret", time.Hour).ParseAndVerify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsUnsignedAlg(t *testing.T) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice",
		"jti": "some-id",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"typ": "access",
	})
	encoded, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret", time.Hour).ParseAndVerify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDefaultTTL(t *testing.T) {
	assert.Equal(t, time.Hour, NewTokenIssuer("secret", 0).TTL())
	assert.Equal(t, 15*time.Minute, NewTokenIssuer("secret", 15*time.Minute).TTL())
}
