package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"whitelistbot/internal/ports"
	"whitelistbot/internal/types"

	log "github.com/sirupsen/logrus"
)

// UserCache is the in-process read model of the user store, keyed by external identity.
// It starts empty and is only written by Refresh, which swaps the whole map at once, so readers
// either see the previous snapshot or the new one, never a partially built map.
// It reflects the store as of the last successful Refresh and nothing more.
type UserCache struct {
	store ports.UserStore

	// seq orders concurrent refreshes: a load that started earlier never replaces a snapshot
	// from a load that started later.
	seq atomic.Uint64

	mu      sync.RWMutex
	data    map[string]types.UserRecord
	applied uint64
}

func New(store ports.UserStore) *UserCache {
	return &UserCache{
		store: store,
		data:  make(map[string]types.UserRecord),
	}
}

// Lookup returns a copy of the cached record. It never touches the store.
func (c *UserCache) Lookup(externalID string) (types.UserRecord, bool) {
	c.mu.RLock()
	u, ok := c.data[externalID]
	c.mu.RUnlock()
	if !ok {
		return types.UserRecord{}, false
	}
	return u.Clone(), true
}

// Len returns the number of cached users.
func (c *UserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Refresh reloads every user from the store and replaces the cached map. On failure the
// previous snapshot is kept and the error is returned to the caller.
func (c *UserCache) Refresh(ctx context.Context) error {
	gen := c.seq.Add(1)
	users, err := c.store.ListAllUsers(ctx)
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "refresh user cache")
	}
	next := make(map[string]types.UserRecord, len(users))
	for _, u := range users {
		next[u.ExternalID] = u.Clone()
	}

	c.mu.Lock()
	if gen > c.applied {
		c.data = next
		c.applied = gen
	}
	c.mu.Unlock()

	log.WithFields(log.Fields{"users": len(next), "gen": gen}).Debug("user cache refreshed")
	return nil
}

// Retrieve resolves a user cache-first. A miss may only mean the cache has not seen a newly
// created user yet, so it refreshes once and looks again. A user still absent after that is
// reported with types.ErrUserNotInitialized.
func (c *UserCache) Retrieve(ctx context.Context, externalID string) (types.UserRecord, error) {
	if u, ok := c.Lookup(externalID); ok {
		return u, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return types.UserRecord{}, err
	}
	if u, ok := c.Lookup(externalID); ok {
		return u, nil
	}
	return types.UserRecord{}, types.Err(types.ErrUserNotInitialized, nil,
		"user %s absent from the store after a cache refresh", externalID)
}
