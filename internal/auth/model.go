package auth

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Tokens is the login response body.
type Tokens struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenClaims is the verified content of an access token.
type TokenClaims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RevokedToken is one row of the revocation ledger. Rows are appended on
// logout and never updated; they only leave the table through pruning.
type RevokedToken struct {
	TokenID   string
	RevokedAt time.Time
	ExpiresAt time.Time
}

type LoginAttempt struct {
	Username       string
	FailedAttempts int
	LockedUntil    *time.Time
}
