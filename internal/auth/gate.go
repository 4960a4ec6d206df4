package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ayush/peces-catalog/internal/models"
	"github.com/ayush/peces-catalog/internal/store"
)

// UserStore is the read side of user persistence the gate needs.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// LoginAttempt is a single login request as submitted by the caller.
type LoginAttempt struct {
	EncodedUsername string
	EncodedPassword string
	BotCheckToken   string
	RemoteIP        string
}

// Result is the outcome of a successful authentication.
type Result struct {
	Username string
	Role     models.Role
}

// GateOptions wires a Gate. Decryptor is required with EncryptedTransport,
// BotCheck with RequireBotCheck.
type GateOptions struct {
	Users     UserStore
	Hasher    PasswordHasher
	Decryptor Decryptor
	BotCheck  BotCheckVerifier

	EncryptedTransport bool
	RequireBotCheck    bool

	Logger *zap.Logger
}

// Gate decides whether a login attempt is authorized and with which role.
// It holds no mutable state and may be shared by any number of goroutines.
type Gate struct {
	users     UserStore
	hasher    PasswordHasher
	decryptor Decryptor
	botCheck  BotCheckVerifier
	encrypted bool
	needsBot  bool
	log       *zap.Logger
}

// NewGate validates opts and returns a Gate.
func NewGate(opts GateOptions) (*Gate, error) {
	if opts.Users == nil {
		return nil, errors.New("user store is required")
	}
	if opts.EncryptedTransport && opts.Decryptor == nil {
		return nil, errors.New("encrypted transport requires a decryptor")
	}
	if opts.RequireBotCheck && opts.BotCheck == nil {
		return nil, errors.New("bot-check requires a verifier")
	}
	if opts.Hasher == nil {
		opts.Hasher = NewMultiHasher(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gate{
		users:     opts.Users,
		hasher:    opts.Hasher,
		decryptor: opts.Decryptor,
		botCheck:  opts.BotCheck,
		encrypted: opts.EncryptedTransport,
		needsBot:  opts.RequireBotCheck,
		log:       opts.Logger,
	}, nil
}

// Encrypted reports whether the gate expects RSA-encrypted credentials.
func (g *Gate) Encrypted() bool { return g.encrypted }

// Authenticate runs the login decision: bot-check, credential recovery,
// user lookup and secret verification, stopping at the first failure.
// It never mutates the user store and never retries.
func (g *Gate) Authenticate(ctx context.Context, attempt LoginAttempt) (Result, error) {
	if attempt.EncodedUsername == "" || attempt.EncodedPassword == "" {
		return Result{}, ErrMalformedRequest
	}

	if g.needsBot {
		if attempt.BotCheckToken == "" {
			return Result{}, ErrMissingBotCheck
		}
		if err := g.botCheck.Verify(ctx, attempt.BotCheckToken, attempt.RemoteIP); err != nil {
			g.log.Info("bot-check rejected", zap.String("remote_ip", attempt.RemoteIP), zap.Error(err))
			return Result{}, fmt.Errorf("%w: %v", ErrBotCheckFailed, err)
		}
	}

	username, password, err := g.recover(attempt)
	if err != nil {
		return Result{}, err
	}

	user, err := g.users.FindByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrUserNotFound
	}
	if err != nil {
		g.log.Error("user lookup failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}

	secret := ParseSecret(user.Password)
	if !secret.Matches(password, g.hasher) {
		return Result{}, ErrInvalidCredentials
	}

	role := user.Role
	if role == "" {
		role = models.DefaultRole
	}
	return Result{Username: user.Username, Role: role}, nil
}

func (g *Gate) recover(attempt LoginAttempt) (string, string, error) {
	if !g.encrypted {
		return attempt.EncodedUsername, attempt.EncodedPassword, nil
	}

	username, err := g.decryptor.Decrypt(attempt.EncodedUsername)
	if err != nil {
		return "", "", g.decryptFailure(err)
	}
	password, err := g.decryptor.Decrypt(attempt.EncodedPassword)
	if err != nil {
		return "", "", g.decryptFailure(err)
	}
	if username == "" || password == "" {
		return "", "", ErrMalformedRequest
	}
	return username, password, nil
}

// decryptFailure classifies a decryptor error. Bad ciphertext is the
// caller's fault; anything else points at the key material.
func (g *Gate) decryptFailure(err error) error {
	if errors.Is(err, ErrDecrypt) {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	g.log.Error("decryptor failure", zap.Error(err))
	return fmt.Errorf("%w: decrypt: %v", ErrInternal, err)
}
