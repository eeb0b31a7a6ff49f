package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = 12

// PasswordHasher produces salted bcrypt digests. The cost is injected so
// production deployments can push a single hash above ~100ms.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the stored digest. A corrupt or
// truncated digest verifies as false rather than failing the request: a login
// against a damaged record must look like bad credentials.
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
