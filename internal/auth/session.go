package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ayush/peces-catalog/internal/models"
)

const SessionCookie = "session_id"

// Principal is the identity attached to a session.
type Principal struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// SessionStore keeps login sessions.
type SessionStore interface {
	Create(ctx context.Context, p Principal) (string, error)
	Get(ctx context.Context, sessionID string) (*Principal, error)
	Delete(ctx context.Context, sessionID string) error
	TTL() time.Duration
}

// RedisSessionStore wraps Redis for session management.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

// Create stores a new session mapping sessionID -> principal.
func (s *RedisSessionStore) Create(ctx context.Context, p Principal) (string, error) {
	sid := uuid.New().String()
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, "session:"+sid, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set session: %w", err)
	}
	return sid, nil
}

// Get returns the principal for a session, or nil if not found / expired.
func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*Principal, error) {
	val, err := s.rdb.Get(ctx, "session:"+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Principal
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &p, nil
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, "session:"+sessionID).Err()
}

// TTL is the lifetime of new sessions.
func (s *RedisSessionStore) TTL() time.Duration { return s.ttl }
