// Package server validates, persists, and fans out chat messages between
// authenticated sessions via the Router type.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shanjith1316/Capstone-Project/internal/store"
)

var (
	// ErrEmptyContent rejects a send whose content is empty after trimming.
	ErrEmptyContent = errors.New("message content cannot be empty")
	// ErrBadIdentity rejects a send whose receiver id does not parse to a
	// valid identity.
	ErrBadIdentity = errors.New("invalid receiver id")
)

// MessageStore persists chat messages. *store.Store satisfies it.
type MessageStore interface {
	SaveMessage(msg store.Message) error
}

// Router validates, persists, and fans out chat messages. The persistence
// step assigns the message timestamp and is the single serialization point
// per message, so delivery order within one conversation follows the
// assigned timestamps.
type Router struct {
	store    MessageStore
	names    *UsernameCache
	registry *Registry
	log      *slog.Logger
	now      func() time.Time
}

// NewRouter creates a message router over the given store, cache, and
// registry.
func NewRouter(messages MessageStore, names *UsernameCache, registry *Registry, log *slog.Logger) *Router {
	return &Router{
		store:    messages,
		names:    names,
		registry: registry,
		log:      log,
		now:      time.Now,
	}
}

// Route handles one send invocation from an authenticated session. The sender
// identity always comes from the session's verified token, never from the
// payload. Validation and persistence failures are reported to the caller
// only; they never affect other sessions. The returned error mirrors what was
// reported, for logging by the caller's pump.
func (r *Router) Route(sender session, receiverID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		r.reportError(sender, "message content cannot be empty")
		return ErrEmptyContent
	}

	receiver, err := strconv.ParseInt(strings.TrimSpace(receiverID), 10, 64)
	if err != nil || receiver <= 0 {
		r.reportError(sender, "invalid receiver id")
		return ErrBadIdentity
	}

	// Acceptance time is the definitive ordering point for the message.
	msg := store.Message{
		ID:         uuid.New(),
		SenderID:   sender.userID(),
		ReceiverID: receiver,
		Content:    content,
		Timestamp:  r.now().UTC(),
	}

	if err := r.store.SaveMessage(msg); err != nil {
		r.log.Error("message persistence failed", "sender_id", msg.SenderID, "receiver_id", receiver, "error", err)
		r.reportError(sender, "failed to persist message")
		return fmt.Errorf("persist message: %w", err)
	}

	frame := mustMarshal(Frame{Type: FrameReceiveMessage, Payload: &MessagePayload{
		SenderID:         msg.SenderID,
		SenderUsername:   r.names.Resolve(msg.SenderID),
		ReceiverID:       msg.ReceiverID,
		ReceiverUsername: r.names.Resolve(msg.ReceiverID),
		Content:          msg.Content,
		Timestamp:        msg.Timestamp,
	}})

	// Identical payload to the receiver's current connection (if any) and to
	// the sender's own. An offline receiver still sees the message on its
	// next history fetch.
	if target, ok := r.registry.Lookup(receiver); ok {
		target.trySend(frame)
	}
	if echo, ok := r.registry.Lookup(msg.SenderID); ok {
		echo.trySend(frame)
	}

	r.log.Debug("message routed", "sender_id", msg.SenderID, "receiver_id", receiver, "timestamp", msg.Timestamp)
	return nil
}

// reportError delivers an Error frame to the offending caller only.
func (r *Router) reportError(caller session, message string) {
	caller.trySend(mustMarshal(Frame{Type: FrameError, Message: message}))
}
