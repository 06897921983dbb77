// Package server defines the shared wire frame types and utility helpers that
// are reused across client, hub, and router logic.
package server

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Frame type names. The first two arrive from clients, the rest are emitted
// by the server.
const (
	FrameSendMessage    = "SendMessage"
	FrameGetOnlineUsers = "GetOnlineUsers"
	FrameReceiveMessage = "ReceiveMessage"
	FrameUserOnline     = "UserOnline"
	FrameUserOffline    = "UserOffline"
	FrameOnlineUsers    = "OnlineUsers"
	FrameError          = "Error"
)

// Frame is the single JSON envelope exchanged over a chat session in both
// directions. Only the fields relevant to the frame's Type are populated.
type Frame struct {
	Type       string          `json:"type"`
	ReceiverID string          `json:"receiverId,omitempty"`
	Content    string          `json:"content,omitempty"`
	Payload    *MessagePayload `json:"payload,omitempty"`
	UserID     int64           `json:"userId,omitempty"`
	Users      []int64         `json:"users,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// MessagePayload is the immutable delivery payload built by the router. The
// identical payload goes to both the receiver and the sender's own session.
type MessagePayload struct {
	SenderID         int64     `json:"senderId"`
	SenderUsername   string    `json:"senderUsername"`
	ReceiverID       int64     `json:"receiverId"`
	ReceiverUsername string    `json:"receiverUsername"`
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
}

// session is the registered write side of one live authenticated connection.
// The registry, presence broadcaster, and router all operate on this
// interface; *Client is the production implementation.
type session interface {
	userID() int64
	username() string
	handle() uuid.UUID
	// trySend enqueues a raw frame without blocking and reports whether the
	// session accepted it.
	trySend(payload []byte) bool
	// teardown closes the session's send channel and transport. Safe to call
	// more than once.
	teardown()
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
