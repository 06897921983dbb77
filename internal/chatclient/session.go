// Package chatclient implements the client half of the chat system: a
// resilient WebSocket session with a fixed reconnection backoff schedule, a
// per-conversation message reconciler, and a small REST API client.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/shanjith1316/Capstone-Project/internal/server"
)

// State names the phases of the session state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrStopped is returned after Stop; the session will not reconnect.
	ErrStopped = errors.New("session stopped")
	// ErrNotConnected is returned when a send cannot establish a connection.
	ErrNotConnected = errors.New("session not connected")
)

// BackoffSchedule is the fixed sequence of reconnect delays. The final delay
// repeats for all subsequent attempts.
var BackoffSchedule = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second}

func backoffDelay(attempt int) time.Duration {
	if attempt >= len(BackoffSchedule) {
		return BackoffSchedule[len(BackoffSchedule)-1]
	}
	return BackoffSchedule[attempt]
}

// Handlers receives server notifications and session status changes. Handlers
// run on the session's read goroutine and must not call back into the
// session.
type Handlers struct {
	OnMessage     func(server.MessagePayload)
	OnUserOnline  func(int64)
	OnUserOffline func(int64)
	OnOnlineUsers func([]int64)
	OnError       func(string)
	OnStateChange func(State)
}

// Session maintains one resilient transport connection to the chat server.
// Transport loss while connected triggers automatic retries on the backoff
// schedule; Stop suppresses any pending retry deterministically.
type Session struct {
	url       string
	transport Transport
	handlers  Handlers
	log       *slog.Logger

	mu      sync.Mutex
	state   State
	conn    Conn
	stopped bool
	attempt int
	retry   *time.Timer
	gen     int // connection generation; guards against stale read loops

	// afterFunc schedules a retry; swapped out in tests to observe delays.
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewSession builds a session for the given server base URL (http or ws
// scheme) and signed token. Start must be called before the first send.
func NewSession(baseURL, token string, transport Transport, handlers Handlers, log *slog.Logger) (*Session, error) {
	endpoint, err := sessionURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	return &Session{
		url:       endpoint,
		transport: transport,
		handlers:  handlers,
		log:       log,
		afterFunc: time.AfterFunc,
	}, nil
}

// sessionURL converts a server base URL into the WebSocket endpoint with the
// token as a query parameter, the shape the handshake expects.
func sessionURL(baseURL, token string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = "/ws"
	query := parsed.Query()
	query.Set("access_token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the initial connection: Disconnected -> Connecting ->
// Connected. On failure the session returns to Disconnected and the error is
// surfaced; the caller may retry Start explicitly.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.setState(StateConnecting)
	s.mu.Unlock()

	conn, err := s.transport.Dial(context.Background(), s.url)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		if err == nil {
			_ = conn.Close()
		}
		return ErrStopped
	}
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}
	s.adopt(conn)
	return nil
}

// Send delivers one chat message. If the session is not currently Connected
// it first attempts to connect synchronously; if no connection can be
// established the send fails and is surfaced to the caller. There is no
// internal queue and no automatic resend.
func (s *Session) Send(receiverID, content string) error {
	conn, err := s.ensureConnected()
	if err != nil {
		return err
	}
	frame := server.Frame{Type: server.FrameSendMessage, ReceiverID: receiverID, Content: content}
	if err := conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// RequestOnlineUsers asks the server for a presence snapshot; the reply
// arrives through Handlers.OnOnlineUsers.
func (s *Session) RequestOnlineUsers() error {
	conn, err := s.ensureConnected()
	if err != nil {
		return err
	}
	return conn.WriteFrame(server.Frame{Type: server.FrameGetOnlineUsers})
}

// Stop transitions to Disconnected from any state and suppresses further
// automatic reconnect attempts.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	conn := s.conn
	s.conn = nil
	s.setState(StateDisconnected)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// adopt installs a freshly dialed connection. Callers hold s.mu.
func (s *Session) adopt(conn Conn) {
	s.conn = conn
	s.attempt = 0
	s.gen++
	s.setState(StateConnected)
	go s.readLoop(conn, s.gen)
}

func (s *Session) readLoop(conn Conn, gen int) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			s.handleTransportLoss(conn, gen)
			return
		}
		s.dispatch(frame)
	}
}

// handleTransportLoss moves Connected -> Reconnecting and schedules the first
// retry. A stale loop from an already-replaced connection changes nothing.
func (s *Session) handleTransportLoss(conn Conn, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || gen != s.gen {
		return
	}

	_ = conn.Close()
	s.conn = nil
	s.setState(StateReconnecting)
	s.scheduleRetryLocked()
}

// scheduleRetryLocked arms the retry timer for the current attempt and
// advances the backoff position. Callers hold s.mu.
func (s *Session) scheduleRetryLocked() {
	delay := backoffDelay(s.attempt)
	s.attempt++
	s.retry = s.afterFunc(delay, s.tryReconnect)
	s.log.Info("reconnect scheduled", "delay", delay, "attempt", s.attempt)
}

// tryReconnect is the timer callback: one dial attempt, then either Connected
// or another scheduled retry.
func (s *Session) tryReconnect() {
	s.mu.Lock()
	if s.stopped || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	conn, err := s.transport.Dial(context.Background(), s.url)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.state != StateReconnecting {
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.log.Warn("reconnect attempt failed", "error", err)
		s.scheduleRetryLocked()
		return
	}
	s.log.Info("reconnected")
	s.adopt(conn)
}

// ensureConnected returns the live connection, dialing synchronously when the
// session is not currently Connected. A pending retry timer is cancelled only
// when the synchronous dial wins; a failed dial leaves the automatic retry
// loop untouched.
func (s *Session) ensureConnected() (Conn, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	if s.state == StateConnected && s.conn != nil {
		conn := s.conn
		s.mu.Unlock()
		return conn, nil
	}
	s.mu.Unlock()

	conn, err := s.transport.Dial(context.Background(), s.url)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		if err == nil {
			_ = conn.Close()
		}
		return nil, ErrStopped
	}
	if s.state == StateConnected && s.conn != nil {
		// A timer-driven reconnect won the race; use its connection.
		if err == nil {
			_ = conn.Close()
		}
		return s.conn, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.adopt(conn)
	return conn, nil
}

// dispatch fans a server frame out to the registered handlers.
func (s *Session) dispatch(frame server.Frame) {
	switch frame.Type {
	case server.FrameReceiveMessage:
		if frame.Payload != nil && s.handlers.OnMessage != nil {
			s.handlers.OnMessage(*frame.Payload)
		}
	case server.FrameUserOnline:
		if s.handlers.OnUserOnline != nil {
			s.handlers.OnUserOnline(frame.UserID)
		}
	case server.FrameUserOffline:
		if s.handlers.OnUserOffline != nil {
			s.handlers.OnUserOffline(frame.UserID)
		}
	case server.FrameOnlineUsers:
		if s.handlers.OnOnlineUsers != nil {
			s.handlers.OnOnlineUsers(frame.Users)
		}
	case server.FrameError:
		if s.handlers.OnError != nil {
			s.handlers.OnError(frame.Message)
		}
	default:
		s.log.Warn("unknown frame type", "type", frame.Type)
	}
}

// setState records the new state and notifies the status handler. Callers
// hold s.mu.
func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(state)
	}
}
