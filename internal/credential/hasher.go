// Package credential produces and verifies password hashes.
//
// Secrets are reduced to a base64 SHA-256 digest before bcrypt so that inputs
// longer than bcrypt's 72-byte limit are never silently truncated.
package credential

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = bcrypt.DefaultCost

// Hasher hashes and verifies secrets with a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, which must be a valid bcrypt cost.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost returns the configured bcrypt cost.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash derives a salted one-way hash of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(prehash(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("credential: hash: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches hash. Malformed hashes yield false.
func (h *Hasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(secret)) == nil
}

func prehash(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

var defaultHasher = &Hasher{cost: DefaultCost}

// HashPassword hashes plain with DefaultCost.
func HashPassword(plain string) (string, error) {
	return defaultHasher.Hash(plain)
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(plain, hash string) bool {
	return defaultHasher.Verify(plain, hash)
}
