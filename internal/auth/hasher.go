package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned for hashed secrets in a format we cannot verify.
var ErrUnsupportedHash = errors.New("unsupported hash format")

// PasswordHasher produces and verifies password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(candidate, storedHash string) bool
}

// MultiHasher detects the hash type by prefix and delegates to bcrypt or
// argon2id. New hashes are always bcrypt.
type MultiHasher struct {
	cost     int
	argon2id *Argon2ID
}

// NewMultiHasher returns a hasher that creates bcrypt hashes at cost.
// A cost of 0 selects bcrypt.DefaultCost.
func NewMultiHasher(cost int) *MultiHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &MultiHasher{cost: cost, argon2id: NewArgon2ID()}
}

// Hash returns a bcrypt hash of password.
func (h *MultiHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether candidate matches storedHash.
func (h *MultiHasher) Verify(candidate, storedHash string) bool {
	return h.Check(candidate, storedHash) == nil
}

// Check is Verify with the reason for failure.
func (h *MultiHasher) Check(candidate, storedHash string) error {
	switch {
	case storedHash == "":
		return errors.New("empty hash")
	case strings.HasPrefix(storedHash, "$argon2id$"):
		return h.argon2id.VerifyPassword(candidate, storedHash)
	case strings.HasPrefix(storedHash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(candidate))
	}
	return ErrUnsupportedHash
}
