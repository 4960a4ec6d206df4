package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

func argon2Fixture(t *testing.T, password string) string {
	t.Helper()
	salt := []byte("0123456789abcdef")
	hash := argon2.IDKey([]byte(password), salt, 2, 64*1024, 1, 32)
	return "$argon2id$v=19$m=65536,t=2,p=1$" + base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(hash)
}

func TestMultiHasher_HashProducesBcrypt(t *testing.T) {
	h := NewMultiHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.True(t, IsHashed(hash))
	assert.Equal(t, SecretHashed, ParseSecret(hash).Kind())
	assert.True(t, h.Verify("secret1", hash))
	assert.False(t, h.Verify("secret2", hash))
}

func TestMultiHasher_RoutesAndErrors_Table(t *testing.T) {
	h := NewMultiHasher(bcrypt.MinCost)

	bc, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	salt := base64.RawStdEncoding.EncodeToString([]byte("0123456789abcdef"))
	phc := argon2Fixture(t, "p@ssw0rd")
	hashPart := phc[len(phc)-43:]
	phcNoVersion := "$argon2id$m=65536,t=2,p=1$" + salt + "$" + hashPart

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  bool
	}{
		{"bcrypt ok", "pw", string(bc), false},
		{"bcrypt wrong password", "nope", string(bc), true},
		{"argon2 ok", "p@ssw0rd", phc, false},
		{"argon2 wrong password", "nope", phc, true},
		{"argon2 no version ok", "p@ssw0rd", phcNoVersion, false},
		{"argon2 bad salt", "p@ssw0rd", "$argon2id$v=19$m=65536,t=2,p=1$**bad**$" + hashPart, true},
		{"argon2 missing hash", "p@ssw0rd", "$argon2id$v=19$m=65536,t=2,p=1$" + salt, true},
		{"argon2 empty hash", "p@ssw0rd", "$argon2id$v=19$m=65536,t=2,p=1$" + salt + "$", true},
		{"argon2 bad params", "p@ssw0rd", "$argon2id$v=19$m=x,t=2,p=1$" + salt + "$" + hashPart, true},
		{"argon2 wrong version", "p@ssw0rd", "$argon2id$v=16$m=65536,t=2,p=1$" + salt + "$" + hashPart, true},
		{"argon2 memory over limit", "p@ssw0rd", "$argon2id$v=19$m=4194304000,t=2,p=1$" + salt + "$" + hashPart, true},
		{"argon2 memory overflows uint32", "p@ssw0rd", "$argon2id$v=19$m=4295032832,t=2,p=1$" + salt + "$" + hashPart, true},
		{"argon2 time over limit", "p@ssw0rd", "$argon2id$v=19$m=65536,t=1000,p=1$" + salt + "$" + hashPart, true},
		{"argon2 threads over limit", "p@ssw0rd", "$argon2id$v=19$m=65536,t=2,p=256$" + salt + "$" + hashPart, true},
		{"unknown format", "pw", "$1$abc$def", true},
		{"empty", "pw", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Check(tt.password, tt.hash)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, h.Verify(tt.password, tt.hash))
			} else {
				assert.NoError(t, err)
				assert.True(t, h.Verify(tt.password, tt.hash))
			}
		})
	}
}

func TestMultiHasher_UnsupportedFormat(t *testing.T) {
	err := NewMultiHasher(0).Check("pw", "$1$abc$def")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}
