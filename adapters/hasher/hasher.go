// Package hasher provides password hashing for user records.
package hasher

import (
	"github.com/artpar/apigen/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. Out-of-range costs fall back to
// bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Cost returns the effective cost.
func (h *Bcrypt) Cost() int { return h.cost }

// Hash returns the bcrypt encoding of plaintext.
func (h *Bcrypt) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare checks plaintext against a bcrypt hash.
func (h *Bcrypt) Compare(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// IsHash reports whether s already looks like a bcrypt hash, so a hook
// re-saving a user record does not hash twice.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)

// Fake prefixes instead of hashing. For tests only.
type Fake struct{}

// Hash returns "fake$" + plaintext.
func (Fake) Hash(plaintext string) (string, error) {
	return "fake$" + plaintext, nil
}

// Compare reverses Hash.
func (Fake) Compare(hash, plaintext string) bool {
	return hash == "fake$"+plaintext
}

var _ ports.Hasher = Fake{}
