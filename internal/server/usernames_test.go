package server

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shanjith1316/Capstone-Project/internal/store"
)

type countingDirectory struct {
	users   map[int64]store.User
	lookups atomic.Int64
}

func (d *countingDirectory) UserByID(id int64) (store.User, error) {
	d.lookups.Add(1)
	user, ok := d.users[id]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return user, nil
}

func TestUsernameCacheReadThrough(t *testing.T) {
	directory := &countingDirectory{users: map[int64]store.User{
		1: {ID: 1, Username: "alice"},
	}}
	cache := NewUsernameCache(directory, testLogger())

	require.Equal(t, "alice", cache.Resolve(1))
	require.Equal(t, "alice", cache.Resolve(1))
	require.Equal(t, int64(1), directory.lookups.Load(), "second resolve must hit the cache")
}

func TestUsernameCacheUnknownUser(t *testing.T) {
	directory := &countingDirectory{users: map[int64]store.User{}}
	cache := NewUsernameCache(directory, testLogger())

	require.Equal(t, "Unknown", cache.Resolve(42))

	// Failed lookups are not cached; the directory is consulted again.
	require.Equal(t, "Unknown", cache.Resolve(42))
	require.Equal(t, int64(2), directory.lookups.Load())
}

func TestUsernameCacheConcurrentMisses(t *testing.T) {
	directory := &countingDirectory{users: map[int64]store.User{
		7: {ID: 7, Username: "carol"},
	}}
	cache := NewUsernameCache(directory, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.Equal(t, "carol", cache.Resolve(7))
		}()
	}
	wg.Wait()

	// Duplicate lookups are acceptable; a corrupted or inconsistent value is
	// not.
	require.Equal(t, "carol", cache.Resolve(7))
}
