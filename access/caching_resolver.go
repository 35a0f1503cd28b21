package access

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/core"
)

const defaultCacheTTL = 30 * time.Second

type roleCacheKey struct {
	userID    uuid.UUID
	libraryID uuid.UUID
}

type roleCacheEntry struct {
	role      core.Role
	found     bool
	expiresAt time.Time
}

// CachingResolver memoizes ResolveRole results for a short TTL.
// Staff mutations call Invalidate; errors are never cached.
// A lookup that overlaps an Invalidate of the same user is returned but not stored.
type CachingResolver struct {
	next        RoleResolver
	ttl         time.Duration
	now         func() time.Time
	mu          sync.RWMutex
	entries     map[roleCacheKey]roleCacheEntry
	generations map[uuid.UUID]uint64
}

// CacheOption configures a CachingResolver.
type CacheOption func(*CachingResolver)

// WithTTL sets how long a resolved role is reused.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachingResolver) {
		c.ttl = ttl
	}
}

// WithCacheClock replaces time.Now, for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachingResolver) {
		c.now = now
	}
}

// NewCachingResolver wraps next.
func NewCachingResolver(next RoleResolver, opts ...CacheOption) *CachingResolver {
	c := &CachingResolver{
		next:        next,
		ttl:         defaultCacheTTL,
		now:         time.Now,
		entries:     make(map[roleCacheKey]roleCacheEntry),
		generations: make(map[uuid.UUID]uint64),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ResolveRole serves from the cache or asks the wrapped resolver.
func (c *CachingResolver) ResolveRole(ctx context.Context, userID, libraryID uuid.UUID) (core.Role, bool, error) {
	key := roleCacheKey{userID: userID, libraryID: libraryID}
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	generation := c.generations[userID]
	c.mu.RUnlock()

	if ok && now.Before(entry.expiresAt) {
		return entry.role, entry.found, nil
	}

	role, found, err := c.next.ResolveRole(ctx, userID, libraryID)
	if err != nil {
		return core.RoleNone, false, err
	}

	c.mu.Lock()
	if c.generations[userID] == generation {
		c.entries[key] = roleCacheEntry{role: role, found: found, expiresAt: now.Add(c.ttl)}
	}
	c.mu.Unlock()

	return role, found, nil
}

// RolesAnywhere is not cached; it only backs catalog writes.
func (c *CachingResolver) RolesAnywhere(ctx context.Context, userID uuid.UUID) ([]core.Role, error) {
	return c.next.RolesAnywhere(ctx, userID)
}

// Invalidate drops every cached role of userID.
func (c *CachingResolver) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[userID]++

	for key := range c.entries {
		if key.userID == userID {
			delete(c.entries, key)
		}
	}
}
