package server

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeSession implements the session interface for registry, presence, and
// router tests.
type fakeSession struct {
	id   int64
	name string
	uid  uuid.UUID

	mu       sync.Mutex
	frames   []Frame
	reject   bool
	tornDown bool
}

func newFakeSession(id int64, name string) *fakeSession {
	return &fakeSession{id: id, name: name, uid: uuid.New()}
}

func (f *fakeSession) userID() int64     { return f.id }
func (f *fakeSession) username() string  { return f.name }
func (f *fakeSession) handle() uuid.UUID { return f.uid }

func (f *fakeSession) trySend(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		panic(err)
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSession) teardown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tornDown = true
}

func (f *fakeSession) received() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeSession) framesOfType(frameType string) []Frame {
	var out []Frame
	for _, frame := range f.received() {
		if frame.Type == frameType {
			out = append(out, frame)
		}
	}
	return out
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	alice := newFakeSession(1, "alice")

	require.Nil(t, registry.Register(alice))

	got, ok := registry.Lookup(1)
	require.True(t, ok)
	require.Equal(t, alice.handle(), got.handle())

	_, ok = registry.Lookup(2)
	require.False(t, ok)
}

func TestRegistryLastWriterWins(t *testing.T) {
	registry := NewRegistry()
	tab1 := newFakeSession(1, "alice")
	tab2 := newFakeSession(1, "alice")

	require.Nil(t, registry.Register(tab1))
	displaced := registry.Register(tab2)
	require.NotNil(t, displaced)
	require.Equal(t, tab1.handle(), displaced.handle())

	// Only the most recent connection is routable.
	got, ok := registry.Lookup(1)
	require.True(t, ok)
	require.Equal(t, tab2.handle(), got.handle())
	require.Equal(t, 1, registry.Len())
}

func TestRegistryStaleUnregisterIsNoOp(t *testing.T) {
	registry := NewRegistry()
	tab1 := newFakeSession(1, "alice")
	tab2 := newFakeSession(1, "alice")

	registry.Register(tab1)
	registry.Register(tab2)

	// The displaced connection disconnecting must not remove the newer one.
	require.False(t, registry.Unregister(tab1))
	got, ok := registry.Lookup(1)
	require.True(t, ok)
	require.Equal(t, tab2.handle(), got.handle())

	require.True(t, registry.Unregister(tab2))
	_, ok = registry.Lookup(1)
	require.False(t, ok)

	// Unregistering an absent identity is a no-op.
	require.False(t, registry.Unregister(tab2))
}

func TestRegistrySnapshotSorted(t *testing.T) {
	registry := NewRegistry()
	for _, id := range []int64{5, 1, 3} {
		registry.Register(newFakeSession(id, "user"))
	}

	require.Equal(t, []int64{1, 3, 5}, registry.Snapshot())
}

// The snapshot must equal exactly the set of identities with no disconnect
// since their last connect, for any interleaving of events.
func TestRegistryConcurrentChurn(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	survivors := make([]*fakeSession, 0, 50)
	var mu sync.Mutex

	for id := int64(1); id <= 100; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s := newFakeSession(id, "user")
			registry.Register(s)
			if id%2 == 0 {
				registry.Unregister(s)
				return
			}
			mu.Lock()
			survivors = append(survivors, s)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, len(survivors))
	for _, id := range snapshot {
		require.Equal(t, int64(1), id%2, "only odd identities stayed connected")
	}
}
