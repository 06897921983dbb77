// Package server implements the REST endpoints for registration, login, user
// listing, and history retrieval, plus their shared middleware.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/shanjith1316/Capstone-Project/internal/auth"
	"github.com/shanjith1316/Capstone-Project/internal/store"
)

// API bundles the HTTP surface: REST endpoints plus the WebSocket upgrade.
type API struct {
	store    *store.Store
	hub      *Hub
	names    *UsernameCache
	secret   []byte
	tokenTTL time.Duration
	validate *validator.Validate
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// APIConfig carries the settings the HTTP surface needs.
type APIConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
}

// NewAPI wires the REST and WebSocket handlers over the store and hub.
func NewAPI(st *store.Store, hub *Hub, names *UsernameCache, cfg APIConfig, log *slog.Logger) *API {
	origins := newOriginChecker(cfg.AllowedOrigins, log)
	return &API{
		store:    st,
		hub:      hub,
		names:    names,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: cfg.TokenTTL,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		log: log,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserInfo is the public shape of a user record.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// handleRegister creates a new account.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.log.Error("password hashing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if _, err := a.store.CreateUser(req.Username, hash); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			writeError(w, http.StatusBadRequest, "Username already exists.")
			return
		}
		a.log.Error("user creation failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully!"})
}

// handleLogin verifies credentials and issues a session token.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	user, err := a.store.UserByName(req.Username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateToken(a.secret, user.ID, user.Username, a.tokenTTL)
	if err != nil {
		a.log.Error("token generation failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleUsers lists every registered user.
func (a *API) handleUsers(w http.ResponseWriter, _ *http.Request, _ *auth.Claims) {
	users, err := a.store.Users()
	if err != nil {
		a.log.Error("user listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(users, func(u store.User, _ int) UserInfo {
		return UserInfo{ID: u.ID, Username: u.Username}
	}))
}

// handleHistory returns the caller's conversation with the peer named in the
// path, ascending by timestamp, with display names resolved.
func (a *API) handleHistory(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	peerID, err := strconv.ParseInt(r.PathValue("peerID"), 10, 64)
	if err != nil || peerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid peer id")
		return
	}

	messages, err := a.store.History(claims.UserID, peerID)
	if err != nil {
		a.log.Error("history fetch failed", "user_id", claims.UserID, "peer_id", peerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}

	payloads := lo.Map(messages, func(m store.Message, _ int) MessagePayload {
		return MessagePayload{
			SenderID:         m.SenderID,
			SenderUsername:   a.names.Resolve(m.SenderID),
			ReceiverID:       m.ReceiverID,
			ReceiverUsername: a.names.Resolve(m.ReceiverID),
			Content:          m.Content,
			Timestamp:        m.Timestamp,
		}
	})
	if payloads == nil {
		payloads = []MessagePayload{}
	}
	writeJSON(w, http.StatusOK, payloads)
}

// authedHandler is an HTTP handler that additionally receives the verified
// claims of the calling user.
type authedHandler func(http.ResponseWriter, *http.Request, *auth.Claims)

// requireAuth verifies the Bearer token before invoking the wrapped handler.
func (a *API) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := auth.ValidateToken(a.secret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r, claims)
	}
}

// decodeBody parses and validates a JSON request body, reporting failures to
// the caller. Returns false when the request was rejected.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
