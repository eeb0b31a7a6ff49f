package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Blocklist is the revocation ledger: an append-only set of token ids
// invalidated before their natural expiry. Revoke must be idempotent and
// IsRevoked must observe any revocation committed before the read began,
// since it gates every protected request.
type Blocklist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// PostgresBlocklist keeps the ledger in the auth_revoked_tokens table.
type PostgresBlocklist struct {
	db *sql.DB
}

func NewPostgresBlocklist(db *sql.DB) *PostgresBlocklist {
	return &PostgresBlocklist{db: db}
}

// Revoke appends a ledger row. Re-revoking the same token id is a no-op: the
// first revocation timestamp wins.
func (b *PostgresBlocklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO auth_revoked_tokens (jti, revoked_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING
	`, tokenID, time.Now().UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert revoked token: %w", err)
	}

	return nil
}

func (b *PostgresBlocklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := b.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM auth_revoked_tokens WHERE jti = $1)
	`, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("query revoked token: %w", err)
	}

	return revoked, nil
}

// PruneExpired deletes ledger rows whose token lifetime has already passed.
// A revoked id only matters while the token it names could still verify, so
// this bounds the table at roughly one TTL window of logouts.
func (b *PostgresBlocklist) PruneExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := b.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT jti
			FROM auth_revoked_tokens
			WHERE expires_at < NOW()
			ORDER BY expires_at ASC
			LIMIT $1
		)
		DELETE FROM auth_revoked_tokens t
		USING stale
		WHERE t.jti = stale.jti
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired revoked tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired revoked tokens rows affected: %w", err)
	}

	return affected, nil
}
