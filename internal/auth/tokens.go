package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// TokenManager issues and resolves opaque bearer tokens backed by Redis.
// Tokens carry no claims themselves; every request resolves the token to
// its user id and derives the principal fresh.
type TokenManager struct {
	client *redis.Client
	ttl    time.Duration
}

type tokenPayload struct {
	UserID   int64     `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenManager{client: client, ttl: ttl}
}

// Issue creates a new token for the user.
func (m *TokenManager) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(tokenPayload{UserID: userID, IssuedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("auth: marshal token: %w", err)
	}
	if err := m.client.Set(ctx, shared.TokenKey(token), payload, m.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return token, nil
}

// Resolve maps a presented token to its user id.
func (m *TokenManager) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, shared.ErrTokenMissing
	}
	payload, err := m.client.Get(ctx, shared.TokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrTokenUnknown
		}
		return 0, fmt.Errorf("auth: resolve token: %w", err)
	}
	var stored tokenPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return 0, shared.ErrTokenUnknown
	}
	return stored.UserID, nil
}

// Revoke invalidates a token immediately.
func (m *TokenManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.client.Del(ctx, shared.TokenKey(token)).Err(); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}
