package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a new user row. Username uniqueness is enforced by the
// database index, never by a check-then-insert: concurrent signups race at
// the constraint and exactly one of them wins.
func (r *Repository) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:           id.String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, user.ID, user.Username, user.PasswordHash, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by username: %w", err)
	}

	return user, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("password update rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) GetLoginAttempt(ctx context.Context, username string) (LoginAttempt, error) {
	var attempt LoginAttempt
	attempt.Username = username

	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM auth_login_attempts
		WHERE username = $1
	`, username).Scan(&attempt.FailedAttempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attempt, nil
		}
		return LoginAttempt{}, fmt.Errorf("query login attempt: %w", err)
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		attempt.LockedUntil = &value
	}

	return attempt, nil
}

func (r *Repository) RegisterFailedAttempt(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin login attempt tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM auth_login_attempts
		WHERE username = $1
		FOR UPDATE
	`, username).Scan(&failed, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			failed = 0
			lockedUntil = sql.NullTime{}
		} else {
			return nil, fmt.Errorf("lock login attempt row: %w", err)
		}
	}

	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		until := lockedUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit existing lock tx: %w", err)
		}
		return &until, nil
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any = nil
	if failed >= maxAttempts {
		until := now.UTC().Add(lockDuration)
		nextLock = &until
		nextLockValue = until
		failed = 0
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_login_attempts (username, failed_attempts, locked_until, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username)
		DO UPDATE SET
			failed_attempts = EXCLUDED.failed_attempts,
			locked_until = EXCLUDED.locked_until,
			updated_at = EXCLUDED.updated_at
	`, username, failed, nextLockValue, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert failed login attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit login attempt tx: %w", err)
	}

	return nextLock, nil
}

func (r *Repository) ResetLoginAttempt(ctx context.Context, username string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_login_attempts
		WHERE username = $1
	`, username)
	if err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}

	return nil
}

func (r *Repository) DeleteStaleLoginAttempts(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT username
			FROM auth_login_attempts
			WHERE updated_at < $1
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM auth_login_attempts t
		USING stale
		WHERE t.username = stale.username
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login attempts rows affected: %w", err)
	}

	return affected, nil
}
