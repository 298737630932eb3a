// Package security wraps bcrypt for passwords, one-time codes and refresh tokens.
// Plaintext secrets passed in here must never be logged or persisted by callers.
package security

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies secrets using bcrypt at a fixed cost.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost clamped to bcrypt's valid range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of secret suitable for storage.
func (h *Hasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Check reports whether secret matches the stored bcrypt hash.
func (h *Hasher) Check(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HashToken hashes a long token such as a signed refresh JWT.
// bcrypt only reads 72 bytes, so the token is reduced to its SHA-256 digest first.
func (h *Hasher) HashToken(token string) (string, error) {
	return h.Hash(digest(token))
}

// CheckToken reports whether token matches a hash produced by HashToken.
func (h *Hasher) CheckToken(hash, token string) bool {
	return h.Check(hash, digest(token))
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
