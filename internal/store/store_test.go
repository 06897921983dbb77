package store

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, slog.New(slog.DiscardHandler))
}

func TestChatKeyIsDirectionless(t *testing.T) {
	require.Equal(t, "1-2", ChatKey(1, 2))
	require.Equal(t, "1-2", ChatKey(2, 1))
	require.Equal(t, "7-7", ChatKey(7, 7))
}

func TestCreateUserAssignsSequentialIDs(t *testing.T) {
	st := newTestStore(t)

	alice, err := st.CreateUser("alice", "hash-a")
	require.NoError(t, err)
	require.Equal(t, int64(1), alice.ID)

	bob, err := st.CreateUser("bob", "hash-b")
	require.NoError(t, err)
	require.Equal(t, int64(2), bob.ID)
}

func TestCreateUserDuplicate(t *testing.T) {
	st := newTestStore(t)

	_, err := st.CreateUser("alice", "hash-a")
	require.NoError(t, err)

	_, err = st.CreateUser("alice", "hash-b")
	require.ErrorIs(t, err, ErrUsernameTaken)

	// The failed attempt must not consume an id.
	bob, err := st.CreateUser("bob", "hash-b")
	require.NoError(t, err)
	require.Equal(t, int64(2), bob.ID)
}

func TestUserLookups(t *testing.T) {
	st := newTestStore(t)

	created, err := st.CreateUser("alice", "hash-a")
	require.NoError(t, err)

	byName, err := st.UserByName("alice")
	require.NoError(t, err)
	require.Equal(t, created, byName)

	byID, err := st.UserByID(created.ID)
	require.NoError(t, err)
	require.Equal(t, created, byID)

	_, err = st.UserByName("nobody")
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = st.UserByID(99)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUsersOrderedByID(t *testing.T) {
	st := newTestStore(t)

	for _, name := range []string{"charlie", "alice", "bob"} {
		_, err := st.CreateUser(name, "hash")
		require.NoError(t, err)
	}

	users, err := st.Users()
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, []string{"charlie", "alice", "bob"},
		[]string{users[0].Username, users[1].Username, users[2].Username})
	require.Equal(t, int64(1), users[0].ID)
	require.Equal(t, int64(3), users[2].ID)
}

func testMessage(sender, receiver int64, content string, at time.Time) Message {
	return Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Timestamp:  at,
	}
}

func TestHistoryAscendingAcrossDirections(t *testing.T) {
	st := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Saved out of order on purpose; the key layout restores chronology.
	require.NoError(t, st.SaveMessage(testMessage(2, 1, "second", base.Add(time.Second))))
	require.NoError(t, st.SaveMessage(testMessage(1, 2, "third", base.Add(2*time.Second))))
	require.NoError(t, st.SaveMessage(testMessage(1, 2, "first", base)))

	for _, pair := range [][2]int64{{1, 2}, {2, 1}} {
		history, err := st.History(pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, history, 3)
		require.Equal(t, "first", history[0].Content)
		require.Equal(t, "second", history[1].Content)
		require.Equal(t, "third", history[2].Content)
	}
}

func TestHistoryIsolatesConversations(t *testing.T) {
	st := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, st.SaveMessage(testMessage(1, 2, "for bob", now)))
	require.NoError(t, st.SaveMessage(testMessage(1, 3, "for carol", now)))

	history, err := st.History(1, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "for bob", history[0].Content)

	history, err = st.History(1, 3)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "for carol", history[0].Content)
}

func TestHistoryEmpty(t *testing.T) {
	st := newTestStore(t)

	history, err := st.History(1, 2)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSameNanosecondMessagesBothKept(t *testing.T) {
	st := newTestStore(t)

	at := time.Date(2025, 6, 1, 12, 0, 0, 500, time.UTC)
	require.NoError(t, st.SaveMessage(testMessage(1, 2, "one", at)))
	require.NoError(t, st.SaveMessage(testMessage(1, 2, "two", at)))

	history, err := st.History(1, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
}
