package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes secrets (passwords and OTP codes) with a fixed cost.
// A zero Cost falls back to bcrypt.DefaultCost.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(plain string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(h), nil
}

// Matches reports whether plain hashes to h. Malformed hashes never match.
func (b Bcrypt) Matches(h, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(h), []byte(plain)) == nil
}
