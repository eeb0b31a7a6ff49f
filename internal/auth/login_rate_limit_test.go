package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginRateLimiterSlidingWindow(t *testing.T) {
	limiter := NewLoginRateLimiter(3, time.Minute)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.allow("10.0.0.1", now.Add(time.Duration(i)*time.Second))
		assert.True(t, allowed, "hit %d", i)
	}

	allowed, retryAfter := limiter.allow("10.0.0.1", now.Add(3*time.Second))
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	// A different IP is unaffected.
	allowed, _ = limiter.allow("10.0.0.2", now.Add(3*time.Second))
	assert.True(t, allowed)

	// Once the window slides past the first hits, the IP is admitted again.
	allowed, _ = limiter.allow("10.0.0.1", now.Add(2*time.Minute))
	assert.True(t, allowed)
}

func TestLoginRateLimiterDefaults(t *testing.T) {
	limiter := NewLoginRateLimiter(0, 0)
	assert.Equal(t, 10, limiter.maxHits)
	assert.Equal(t, time.Minute, limiter.window)
}
