package auth

import (
	"crypto/subtle"
	"strings"
)

// SecretKind discriminates how a stored credential is held.
type SecretKind int

const (
	SecretPlaintext SecretKind = iota
	SecretHashed
)

func (k SecretKind) String() string {
	if k == SecretHashed {
		return "hashed"
	}
	return "plaintext"
}

// hashPrefixes are the markers of the hash formats we can produce or verify.
var hashPrefixes = []string{"$2a$", "$2b$", "$2y$", "$argon2id$"}

// CredentialSecret is the stored password of a user, either a legacy
// plaintext value or a self-describing hash.
type CredentialSecret struct {
	kind  SecretKind
	value string
}

// ParseSecret classifies a stored password by its prefix.
func ParseSecret(stored string) CredentialSecret {
	if IsHashed(stored) {
		return CredentialSecret{kind: SecretHashed, value: stored}
	}
	return CredentialSecret{kind: SecretPlaintext, value: stored}
}

// IsHashed reports whether s carries a known hash prefix.
func IsHashed(s string) bool {
	for _, p := range hashPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Kind returns the variant tag.
func (s CredentialSecret) Kind() SecretKind { return s.kind }

// Matches checks candidate against the secret. Hashed secrets go through
// hasher; plaintext ones are compared in constant time.
func (s CredentialSecret) Matches(candidate string, hasher PasswordHasher) bool {
	if s.kind == SecretHashed {
		return hasher.Verify(candidate, s.value)
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.value)) == 1
}
