package library

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Credentials hashes and verifies member passwords with bcrypt. Each Hash
// call salts independently, so the same plaintext yields a different hash
// every time. Plaintext is never stored or logged.
type Credentials struct {
	cost int
}

// NewCredentials returns a credential service with the given bcrypt cost.
// Costs outside bcrypt's supported range fall back to the default cost.
func NewCredentials(cost int) Credentials {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Credentials{cost: cost}
}

// Hash derives a salted one-way hash of plaintext.
func (c Credentials) Hash(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify reports whether plaintext matches hash. A malformed hash fails
// closed: the answer is false, never an error or a panic.
func (c Credentials) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
