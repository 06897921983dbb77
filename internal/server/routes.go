// Package server wires HTTP handlers into a ServeMux for the chat
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes:
// health check, WebSocket endpoint, and the REST collaborators.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleHealth)
	mux.HandleFunc("/ws", a.handleWebSocket)
	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/users", a.requireAuth(a.handleUsers))
	mux.HandleFunc("GET /api/messages/{peerID}", a.requireAuth(a.handleHistory))
	return mux
}
