package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute
)

var (
	ErrDuplicateUsername  = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSamePassword       = errors.New("new password must differ from the current one")
)

type ErrLoginLocked struct {
	Until time.Time
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}

// UserStore is the credential store. *Repository is the Postgres
// implementation; tests substitute in-memory fakes.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	GetLoginAttempt(ctx context.Context, username string) (LoginAttempt, error)
	RegisterFailedAttempt(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetLoginAttempt(ctx context.Context, username string) error
}

// Service drives the per-identity state machine:
//
//	Unregistered --Signup--> Registered --Login--> {valid token}*
//
// The store carries no explicit state column; "registered" is the existence
// of a users row and "logged in" is the existence of an unexpired,
// unrevoked token. Logout moves a single token out of the valid set by
// appending its id to the blocklist.
type Service struct {
	store     UserStore
	blocklist Blocklist
	issuer    *TokenIssuer
	hasher    *PasswordHasher

	maxAttempts  int
	lockDuration time.Duration
}

func NewService(store UserStore, blocklist Blocklist, issuer *TokenIssuer, hasher *PasswordHasher) *Service {
	return &Service{
		store:        store,
		blocklist:    blocklist,
		issuer:       issuer,
		hasher:       hasher,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockWindow,
	}
}

func (s *Service) WithLockoutConfig(maxAttempts int, lockDuration time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
}

// Signup creates a user. A uniqueness violation from the store surfaces as
// ErrDuplicateUsername; it is a business outcome here, not a server fault.
func (s *Service) Signup(ctx context.Context, username, password string) (User, error) {
	username = normalizeUsername(username)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}

	user, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		return User{}, err
	}

	return user, nil
}

// Login verifies credentials and issues a fresh token. Unknown usernames and
// wrong passwords are deliberately indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (Tokens, error) {
	username = normalizeUsername(username)
	password = strings.TrimSpace(password)

	if username == "" || password == "" {
		return Tokens{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	attempt, err := s.store.GetLoginAttempt(ctx, username)
	if err != nil {
		return Tokens{}, err
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return Tokens{}, ErrLoginLocked{Until: *attempt.LockedUntil}
	}

	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tokens{}, s.failLogin(ctx, username, now)
		}
		return Tokens{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return Tokens{}, s.failLogin(ctx, username, now)
	}

	if err := s.store.ResetLoginAttempt(ctx, username); err != nil {
		return Tokens{}, err
	}

	encoded, claims, err := s.issuer.Issue(user.Username)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken: encoded,
		TokenType:   "Bearer",
		ExpiresIn:   int64(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds()),
	}, nil
}

func (s *Service) failLogin(ctx context.Context, username string, now time.Time) error {
	lockedUntil, err := s.store.RegisterFailedAttempt(ctx, username, s.maxAttempts, s.lockDuration, now)
	if err != nil {
		return err
	}
	if lockedUntil != nil {
		return ErrLoginLocked{Until: *lockedUntil}
	}
	return ErrInvalidCredentials
}

// Logout appends the token id to the revocation ledger. The token has
// already passed the gate; revoking it again, or after it expired, is a
// no-op by ledger contract.
func (s *Service) Logout(ctx context.Context, claims TokenClaims) error {
	return s.blocklist.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
}

// ResetPassword changes the acting user's password. The bearer token names
// the subject but is not trusted on its own: the current password is
// re-verified first. Outstanding tokens stay valid afterwards.
//
// TODO: revoke the user's outstanding tokens on password reset.
func (s *Service) ResetPassword(ctx context.Context, subject, currentPassword, newPassword string) error {
	currentPassword = strings.TrimSpace(currentPassword)
	newPassword = strings.TrimSpace(newPassword)

	if newPassword == currentPassword {
		return ErrSamePassword
	}

	user, err := s.store.GetByUsername(ctx, normalizeUsername(subject))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return err
	}

	return nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
