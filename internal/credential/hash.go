package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used for stored secrets.
const DefaultCost = 10

// Hasher produces salted, self-describing bcrypt hashes. The same type is
// used for owner passwords and API key secrets, but each record stores its
// own hash; the two are never interchanged.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost. Values outside
// bcrypt's accepted range fall back to DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of secret. Two calls with the same input
// yield different outputs because the salt is random.
func (h *Hasher) Hash(secret string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("hash secret: input exceeds 72 bytes")
		}
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(out), nil
}

// Verify reports whether secret matches hash. A malformed hash is simply a
// mismatch.
func (h *Hasher) Verify(secret, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
