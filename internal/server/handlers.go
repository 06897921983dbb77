// Package server exposes the WebSocket upgrade endpoint that turns an
// authenticated HTTP request into a live chat session.
package server

import (
	"net/http"

	"github.com/shanjith1316/Capstone-Project/internal/auth"
)

// handleWebSocket authenticates and upgrades a session handshake. The token
// rides in the access_token query parameter because browser WebSocket clients
// cannot set an Authorization header on the upgrade request. A missing,
// malformed, or unverifiable token is fatal for the connection attempt; no
// session state is created before verification succeeds.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("access_token")
	if token == "" {
		http.Error(w, "missing access token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(a.secret, token)
	if err != nil {
		a.log.Warn("rejected handshake", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, a.hub, claims, r.RemoteAddr)
	a.hub.Register(client)
}

// handleHealth provides a simple health check endpoint.
func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("chat server is running"))
}
