// Package store persists user records and the chat message log in BadgerDB.
//
// Message keys embed a zero-padded UnixNano timestamp so a prefix scan over a
// conversation yields messages already in chronological order; a UUID suffix
// disambiguates two messages written in the same nanosecond.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	// ErrUsernameTaken is returned by CreateUser when the username already
	// has a record.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrUserNotFound is returned by lookups that match no user record.
	ErrUserNotFound = errors.New("user not found")
)

// User is a registered account. PasswordHash holds the encoded Argon2id hash,
// never the plain text password.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// Message is one persisted chat message. Immutable once saved; Timestamp is
// the canonical ordering key within a conversation.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatKey derives the unordered conversation identifier for two user ids.
// Both (a,b) and (b,a) map to the same key, so one bucket holds the whole
// conversation regardless of direction.
func ChatKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

// Store wraps a BadgerDB instance with the operations the chat system needs.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// NewStore creates a Store on top of an open BadgerDB handle. The caller
// retains ownership of the handle and is responsible for closing it.
func NewStore(db *badger.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

const userSeqKey = "user:seq"

func userNameKey(username string) []byte {
	return []byte("user:name:" + username)
}

func userIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("user:id:%019d", id))
}

func messageKey(msg Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		ChatKey(msg.SenderID, msg.ReceiverID),
		msg.Timestamp.UnixNano(),
		msg.ID,
	))
}

// CreateUser allocates a new user id and stores the record under both the
// name and id indexes. It fails with ErrUsernameTaken if the name is in use.
func (s *Store) CreateUser(username, passwordHash string) (User, error) {
	var user User
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userNameKey(username)); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		id, err := nextUserID(txn)
		if err != nil {
			return err
		}

		user = User{ID: id, Username: username, PasswordHash: passwordHash}
		encoded, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := txn.Set(userNameKey(username), encoded); err != nil {
			return err
		}
		return txn.Set(userIDKey(id), encoded)
	})
	if err != nil {
		return User{}, err
	}
	s.log.Info("user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func nextUserID(txn *badger.Txn) (int64, error) {
	var id int64 = 1
	item, err := txn.Get([]byte(userSeqKey))
	switch {
	case err == nil:
		err = item.Value(func(value []byte) error {
			var current int64
			if _, err := fmt.Sscanf(string(value), "%d", &current); err != nil {
				return err
			}
			id = current + 1
			return nil
		})
		if err != nil {
			return 0, err
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return 0, err
	}
	return id, txn.Set([]byte(userSeqKey), []byte(fmt.Sprintf("%d", id)))
}

// UserByName fetches a user record by username.
func (s *Store) UserByName(username string) (User, error) {
	return s.getUser(userNameKey(username))
}

// UserByID fetches a user record by id.
func (s *Store) UserByID(id int64) (User, error) {
	return s.getUser(userIDKey(id))
}

func (s *Store) getUser(key []byte) (User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &user)
		})
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Users returns every registered user ordered by id. The id index keys are
// zero padded, so iteration order is already ascending.
func (s *Store) Users() ([]User, error) {
	var users []User
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:id:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var user User
				if err := json.Unmarshal(value, &user); err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SaveMessage persists a message under its conversation bucket. The caller
// assigns the id and timestamp before saving; the store never mutates them.
func (s *Store) SaveMessage(msg Message) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), encoded)
	})
}

// History returns every message exchanged between the two users, in either
// direction, ascending by timestamp.
func (s *Store) History(a, b int64) ([]Message, error) {
	var messages []Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("msg:" + ChatKey(a, b) + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var msg Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
