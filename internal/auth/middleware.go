package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
)

type contextKey string

const claimsContextKey contextKey = "chabits-token-claims"

// Middleware is the auth gate in front of every protected route. It verifies
// the bearer token and then asks the revocation ledger about its id, on
// every request — a just-revoked token must already be dead on the next
// call, so revocation status is never cached.
//
// Malformed, expired and revoked tokens all produce the same 401 body.
func Middleware(issuer *TokenIssuer, blocklist Blocklist, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		claims, err := issuer.ParseAndVerify(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		revoked, err := blocklist.IsRevoked(r.Context(), claims.TokenID)
		if err != nil {
			// Fail closed: if the ledger is unreachable nothing gets through.
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if revoked {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// ContextWithClaims attaches verified claims to a request context.
func ContextWithClaims(ctx context.Context, claims TokenClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the verified claims placed by Middleware.
func ClaimsFromContext(ctx context.Context) (TokenClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(TokenClaims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
