package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2ID verifies PHC-formatted argon2id hashes, as written by earlier
// deployments that hashed with argon2 instead of bcrypt.
// Format: $argon2id$v=19$m=65536,t=2,p=1$<salt_b64>$<hash_b64>
type Argon2ID struct{}

// NewArgon2ID returns an Argon2ID verifier.
func NewArgon2ID() *Argon2ID { return &Argon2ID{} }

// VerifyPassword checks password against a PHC-formatted argon2id hash.
func (a *Argon2ID) VerifyPassword(password, hashed string) error {
	params, salt, expected, err := parseArgon2ID(hashed)
	if err != nil {
		return err
	}
	derived := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	if subtle.ConstantTimeCompare(derived, expected) == 1 {
		return nil
	}
	return fmt.Errorf("password mismatch")
}

// Upper bounds on stored parameters. A hash asking for more is malformed.
const (
	maxArgon2Memory = 256 * 1024 // KiB
	maxArgon2Time   = 10
)

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseArgon2ID(s string) (argon2Params, []byte, []byte, error) {
	params := argon2Params{memory: 64 * 1024, time: 2, threads: 1}

	parts := strings.Split(s, "$")
	// ["", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash]; version is optional.
	if len(parts) == 5 && !strings.HasPrefix(parts[2], "v=") {
		parts = append(parts[:2], append([]string{"v=19"}, parts[2:]...)...)
	}
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, fmt.Errorf("invalid argon2id format")
	}
	if parts[2] != "v=19" {
		return params, nil, nil, fmt.Errorf("unsupported argon2id version %q", parts[2])
	}

	for _, kv := range strings.Split(parts[3], ",") {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return params, nil, nil, fmt.Errorf("invalid argon2id parameter %q", kv)
		}
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil || n == 0 {
			return params, nil, nil, fmt.Errorf("invalid argon2id parameter %q", kv)
		}
		switch key {
		case "m":
			if n > maxArgon2Memory {
				return params, nil, nil, fmt.Errorf("argon2id memory %d exceeds limit", n)
			}
			params.memory = uint32(n)
		case "t":
			if n > maxArgon2Time {
				return params, nil, nil, fmt.Errorf("argon2id time %d exceeds limit", n)
			}
			params.time = uint32(n)
		case "p":
			if n > 255 {
				return params, nil, nil, fmt.Errorf("invalid argon2id parameter %q", kv)
			}
			params.threads = uint8(n)
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("invalid argon2id salt: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("invalid argon2id hash: %w", err)
	}
	if len(hash) == 0 {
		return params, nil, nil, fmt.Errorf("invalid argon2id hash: empty")
	}
	return params, salt, hash, nil
}
