package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/opsledger/opsledger/internal/tenancy"
)

// PermissionCache is a read-through Redis cache for role-derived permission
// sets. Invalidation bumps a per-tenant epoch, which orphans every cached set
// of that tenant at once; orphaned keys age out via TTL. Concurrent loads of
// the same set are collapsed with singleflight.
type PermissionCache struct {
	client redis.UniversalClient
	loader RolesPort
	ttl    time.Duration
	group  singleflight.Group
}

// NewPermissionCache builds a cache in front of loader.
func NewPermissionCache(client redis.UniversalClient, loader RolesPort, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionCache{client: client, loader: loader, ttl: ttl}
}

// PermissionsOf implements RolesPort. A cache failure falls back to the
// loader; evaluation never depends on Redis being up.
func (c *PermissionCache) PermissionsOf(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return nil, err
	}
	key, err := c.permsKey(ctx, businessID, userID)
	if err != nil {
		return c.loader.PermissionsOf(ctx, scope, userID)
	}

	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var names []string
		if err := json.Unmarshal(cached, &names); err == nil {
			return names, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return c.loader.PermissionsOf(ctx, scope, userID)
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		names, err := c.loader.PermissionsOf(ctx, scope, userID)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(names); err == nil {
			c.client.Set(ctx, key, payload, c.ttl)
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Invalidate implements the roles service's invalidator port: bumping the
// tenant epoch makes every cached set of the tenant unreachable, giving the
// mutating admin read-after-write consistency on the next evaluation.
func (c *PermissionCache) Invalidate(ctx context.Context, scope *tenancy.Scope) error {
	businessID, err := scope.BusinessID()
	if err != nil {
		return err
	}
	return c.client.Incr(ctx, epochKey(businessID)).Err()
}

func (c *PermissionCache) permsKey(ctx context.Context, businessID, userID uuid.UUID) (string, error) {
	epoch, err := c.client.Get(ctx, epochKey(businessID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("authz:perms:%s:%d:%s", businessID, epoch, userID), nil
}

func epochKey(businessID uuid.UUID) string {
	return "authz:epoch:" + businessID.String()
}
