package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid rsa private key")
	ErrDecrypt           = errors.New("decryption failed")
)

// Decryptor recovers plaintext credentials sent encrypted under the service
// public key.
type Decryptor interface {
	Decrypt(ciphertextBase64 string) (string, error)
	PublicKeyPEM() []byte
}

// Padding selects the RSA encryption scheme the front end uses.
type Padding string

const (
	PaddingPKCS1 Padding = "pkcs1"
	PaddingOAEP  Padding = "oaep" // SHA-1, the WebCrypto/Node default
)

// RSADecryptor holds the private key loaded at startup. It is read-only and
// safe for concurrent use.
type RSADecryptor struct {
	key       *rsa.PrivateKey
	padding   Padding
	publicPEM []byte
}

// NewRSADecryptorFromBase64 decodes a base64-wrapped PEM key, the form it
// takes in the PRIVATE_KEY environment variable.
func NewRSADecryptorFromBase64(encoded string, padding Padding) (*RSADecryptor, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrInvalidPrivateKey, err)
	}
	return NewRSADecryptor(raw, padding)
}

// NewRSADecryptor parses a PKCS#1 or PKCS#8 PEM private key.
func NewRSADecryptor(privatePEM []byte, padding Padding) (*RSADecryptor, error) {
	if padding == "" {
		padding = PaddingPKCS1
	}
	if padding != PaddingPKCS1 && padding != PaddingOAEP {
		return nil, fmt.Errorf("unknown rsa padding %q", padding)
	}

	block, _ := pem.Decode(privatePEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPrivateKey)
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPrivateKey)
		}
		key = rk
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidPrivateKey, block.Type)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	return &RSADecryptor{
		key:       key,
		padding:   padding,
		publicPEM: pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
	}, nil
}

// Decrypt decodes and decrypts a base64 ciphertext into a UTF-8 string.
// Every failure is reported as ErrDecrypt.
func (d *RSADecryptor) Decrypt(ciphertextBase64 string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertextBase64))
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrDecrypt, err)
	}
	if len(ct) != d.key.Size() {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrDecrypt, len(ct))
	}

	var pt []byte
	if d.padding == PaddingOAEP {
		pt, err = rsa.DecryptOAEP(sha1.New(), rand.Reader, d.key, ct, nil)
	} else {
		pt, err = rsa.DecryptPKCS1v15(rand.Reader, d.key, ct)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if !utf8.Valid(pt) {
		return "", fmt.Errorf("%w: plaintext is not UTF-8", ErrDecrypt)
	}
	return string(pt), nil
}

// PublicKeyPEM returns the PKIX public key matching the private key.
func (d *RSADecryptor) PublicKeyPEM() []byte { return d.publicPEM }

// GenerateKeyPair creates an RSA key pair and returns the PKCS#8 private
// key and PKIX public key, both PEM encoded.
func GenerateKeyPair(bits int) (privatePEM, publicPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}
