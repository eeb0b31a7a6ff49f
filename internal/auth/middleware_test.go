package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateProbe(t *testing.T, issuer *TokenIssuer, blocklist Blocklist, authorization string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	var gotSubject string
	handler := Middleware(issuer, blocklist, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		gotSubject = claims.Subject
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotSubject
}

func TestMiddlewarePassesValidToken(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	encoded, _, err := issuer.Issue("alice")
	require.NoError(t, err)

	rec, subject := gateProbe(t, issuer, newMemBlocklist(), "Bearer "+encoded)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", subject)
}

func TestMiddlewareRejectsMissingAndMalformedHeaders(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	blocklist := newMemBlocklist()

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer "} {
		rec, _ := gateProbe(t, issuer, blocklist, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddlewareRejectsRevokedToken(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	blocklist := newMemBlocklist()

	encoded, claims, err := issuer.Issue("alice")
	require.NoError(t, err)
	require.NoError(t, blocklist.Revoke(context.Background(), claims.TokenID, claims.ExpiresAt))

	rec, _ := gateProbe(t, issuer, blocklist, "Bearer "+encoded)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// A revoked token must be indistinguishable from a garbage one.
func TestRevokedAndInvalidTokensLookAlike(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	blocklist := newMemBlocklist()

	encoded, claims, err := issuer.Issue("alice")
	require.NoError(t, err)
	require.NoError(t, blocklist.Revoke(context.Background(), claims.TokenID, claims.ExpiresAt))

	revokedRec, _ := gateProbe(t, issuer, blocklist, "Bearer "+encoded)
	invalidRec, _ := gateProbe(t, issuer, blocklist, "Bearer not-a-token")

	assert.Equal(t, invalidRec.Code, revokedRec.Code)
	revokedBody, _ := io.ReadAll(revokedRec.Body)
	invalidBody, _ := io.ReadAll(invalidRec.Body)
	assert.Equal(t, string(invalidBody), string(revokedBody))
}

func TestMiddlewareChecksLedgerOnEveryRequest(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	blocklist := newMemBlocklist()

	encoded, claims, err := issuer.Issue("alice")
	require.NoError(t, err)

	rec, _ := gateProbe(t, issuer, blocklist, "Bearer "+encoded)
	require.Equal(t, http.StatusOK, rec.Code)

	// Revocation lands between two requests with the same token; the second
	// one must already be rejected.
	require.NoError(t, blocklist.Revoke(context.Background(), claims.TokenID, claims.ExpiresAt))

	rec, _ = gateProbe(t, issuer, blocklist, "Bearer "+encoded)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
