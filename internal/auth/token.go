package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer mints and verifies HS256 access tokens. Each token carries the
// username as subject plus a fresh v7 uuid as jti so the revocation ledger
// can name it after the fact.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

func (i *TokenIssuer) Issue(subject string) (string, TokenClaims, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", TokenClaims{}, fmt.Errorf("generate token id: %w", err)
	}

	now := time.Now().UTC()
	claims := TokenClaims{
		Subject:   subject,
		TokenID:   jti.String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": claims.Subject,
		"jti": claims.TokenID,
		"iat": claims.IssuedAt.Unix(),
		"exp": claims.ExpiresAt.Unix(),
		"typ": "access",
	})
	encoded, err := token.SignedString(i.secret)
	if err != nil {
		return "", TokenClaims{}, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, claims, nil
}

// ParseAndVerify checks signature, structure and expiry. Every failure mode
// collapses into ErrInvalidToken; callers never learn which check tripped.
func (i *TokenIssuer) ParseAndVerify(tokenStr string) (TokenClaims, error) {
	mapClaims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, mapClaims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	if tokenType, _ := mapClaims["typ"].(string); tokenType != "access" {
		return TokenClaims{}, ErrInvalidToken
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	jti, _ := mapClaims["jti"].(string)
	if jti == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	expiresAt, err := mapClaims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return TokenClaims{}, ErrInvalidToken
	}
	issuedAt, err := mapClaims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return TokenClaims{}, ErrInvalidToken
	}

	return TokenClaims{
		Subject:   subject,
		TokenID:   jti,
		IssuedAt:  issuedAt.Time.UTC(),
		ExpiresAt: expiresAt.Time.UTC(),
	}, nil
}
