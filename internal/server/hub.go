// Package server coordinates session registration, presence broadcast, and
// connection cleanup for the chat system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limits bounds per-connection resource usage. Values come from the runtime
// configuration and apply to every accepted session.
type Limits struct {
	MaxMessageSize int64
	RateBurst      int
	RateRefill     time.Duration
}

// Hub owns the connection lifecycle: it serializes register/unregister events
// from connection goroutines, drives presence announcements, and handles
// graceful shutdown. Message fan-out itself goes through the Router directly;
// the hub is only on the lifecycle path.
type Hub struct {
	registry *Registry
	presence *Presence
	router   *Router
	limits   Limits
	log      *slog.Logger

	register   chan *Client
	unregister chan *Client
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub wired to the given registry, presence broadcaster, and
// router. Run must be started in its own goroutine before clients attach.
func NewHub(registry *Registry, presence *Presence, router *Router, limits Limits, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   registry,
		presence:   presence,
		router:     router,
		limits:     limits,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a freshly upgraded client to the hub's event loop.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		c.teardown()
	}
}

// Run starts the hub's main event loop, handling session registration,
// unregistration, and the presence announcements they trigger. This method
// should be called in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case c := <-h.register:
			h.handleConnect(c)

		case c := <-h.unregister:
			h.handleDisconnect(c)
		}
	}
}

// handleConnect registers the session, evicts any displaced connection for
// the same identity, starts the client's pumps, and announces presence.
func (h *Hub) handleConnect(c *Client) {
	if displaced := h.registry.Register(c); displaced != nil {
		// Last writer wins: the older tab loses its routable connection.
		displaced.teardown()
		h.log.Info("displaced prior connection", "user_id", c.userID())
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	h.log.Info("client connected", "user_id", c.userID(), "remote_addr", c.addr, "online", h.registry.Len())
	h.dropAll(h.presence.Online(c))
}

// handleDisconnect removes the session and announces it went offline. A stale
// disconnect from an already-displaced connection is a no-op for presence.
func (h *Hub) handleDisconnect(c *Client) {
	defer c.teardown()

	if !h.registry.Unregister(c) {
		return
	}
	h.log.Info("client disconnected", "user_id", c.userID(), "remote_addr", c.addr, "online", h.registry.Len())
	h.dropAll(h.presence.Offline(c))
}

// dropAll removes sessions whose send buffers rejected a broadcast. Each drop
// emits its own offline announcement, which can in turn surface more stalled
// sessions; the queue drains them iteratively.
func (h *Hub) dropAll(stalled []session) {
	queue := stalled
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		if !h.registry.Unregister(next) {
			continue
		}
		next.teardown()
		h.log.Warn("dropped session with full send buffer", "user_id", next.userID())
		queue = append(queue, h.presence.Offline(next)...)
	}
}

// shutdownClients closes every active session as part of hub shutdown.
func (h *Hub) shutdownClients() {
	sessions := h.registry.connections()
	for _, s := range sessions {
		h.registry.Unregister(s)
		s.teardown()
	}
	h.log.Info("closed client connections", "count", len(sessions))
}

// Shutdown initiates graceful shutdown of the hub and waits for all pump
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")
	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
