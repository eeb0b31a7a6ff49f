package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBlocklistPrefix = "chabits:revoked:"

// minRevocationTTL keeps a ledger entry alive for a token that already looks
// expired, so slightly skewed clocks cannot resurrect it.
const minRevocationTTL = time.Hour

// RedisBlocklist keeps the revocation ledger as TTL-bounded Redis keys, one
// per token id. Expiry-based pruning comes for free from the key TTL.
type RedisBlocklist struct {
	client *redis.Client
}

func NewRedisBlocklist(client *redis.Client) *RedisBlocklist {
	return &RedisBlocklist{client: client}
}

func (b *RedisBlocklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}

	if err := b.client.Set(ctx, redisBlocklistPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("set revoked token: %w", err)
	}

	return nil
}

func (b *RedisBlocklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	hits, err := b.client.Exists(ctx, redisBlocklistPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}

	return hits > 0, nil
}
