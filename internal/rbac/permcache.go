package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// PermissionCache is the read-through redis cache of derived permission
// codes keyed by user id. Invalidation happens synchronously inside the
// assignment commit path; a stale entry here would corrupt enforcement
// decisions.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPermissionCache constructs a redis-backed permission cache.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PermissionCache{client: client, ttl: ttl}
}

// Get returns the cached code set and whether it was present.
func (c *PermissionCache) Get(ctx context.Context, userID int64) ([]string, bool, error) {
	payload, err := c.client.Get(ctx, shared.PermCacheKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rbac: cache get: %w", err)
	}
	var codes []string
	if err := json.Unmarshal(payload, &codes); err != nil {
		// Unreadable entries behave like misses; the caller recomputes.
		return nil, false, nil
	}
	return codes, true, nil
}

// Set stores the code set for a user.
func (c *PermissionCache) Set(ctx context.Context, userID int64, codes []string) error {
	payload, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("rbac: cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, shared.PermCacheKey(userID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("rbac: cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached code sets for the given users.
func (c *PermissionCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = shared.PermCacheKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rbac: cache invalidate: %w", err)
	}
	return nil
}
