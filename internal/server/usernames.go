// Package server resolves user ids to display names through a read-through
// cache so message fan-out never blocks on repeated store lookups.
package server

import (
	"log/slog"
	"sync"

	"github.com/shanjith1316/Capstone-Project/internal/store"
)

// unknownUsername is the display name used when a lookup fails; failed
// lookups are never cached so a later resolve can still succeed.
const unknownUsername = "Unknown"

// UserDirectory resolves user records by id. *store.Store satisfies it.
type UserDirectory interface {
	UserByID(id int64) (store.User, error)
}

// UsernameCache is a read-through cache from user id to display name.
// Usernames are immutable after creation, so entries are never evicted or
// invalidated. Concurrent misses for the same id may each hit the directory,
// but LoadOrStore guarantees every caller observes a single cached value.
type UsernameCache struct {
	names sync.Map // int64 -> string
	users UserDirectory
	log   *slog.Logger
}

// NewUsernameCache creates a cache backed by the given user directory.
func NewUsernameCache(users UserDirectory, log *slog.Logger) *UsernameCache {
	return &UsernameCache{users: users, log: log}
}

// Resolve returns the display name for a user id, querying the directory once
// on a miss and caching the result.
func (c *UsernameCache) Resolve(id int64) string {
	if cached, ok := c.names.Load(id); ok {
		return cached.(string)
	}

	user, err := c.users.UserByID(id)
	if err != nil {
		c.log.Warn("username lookup failed", "user_id", id, "error", err)
		return unknownUsername
	}

	actual, _ := c.names.LoadOrStore(id, user.Username)
	return actual.(string)
}
