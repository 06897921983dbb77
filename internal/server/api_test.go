package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shanjith1316/Capstone-Project/internal/store"
)

const testSecret = "test-secret-key-for-unit-tests"

// newTestStack wires a full server stack over an in-memory Badger instance
// and returns the running test server plus the store behind it.
func newTestStack(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := testLogger()
	st := store.NewStore(db, log)
	registry := NewRegistry()
	presence := NewPresence(registry, log)
	names := NewUsernameCache(st, log)
	router := NewRouter(st, names, registry, log)
	hub := NewHub(registry, presence, router, Limits{
		MaxMessageSize: 4096,
		RateBurst:      100,
		RateRefill:     time.Second,
	}, log)

	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	api := NewAPI(st, hub, names, APIConfig{
		JWTSecret:      testSecret,
		TokenTTL:       time.Hour,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, log)

	ts := httptest.NewServer(api.Routes())
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func registerUser(t *testing.T, ts *httptest.Server, username, password string) {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func loginUser(t *testing.T, ts *httptest.Server, username, password string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func authedGet(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestRegisterLoginFlow(t *testing.T) {
	ts, _ := newTestStack(t)

	registerUser(t, ts, "alice", "password123")
	loginUser(t, ts, "alice", "password123")
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ts, _ := newTestStack(t)

	registerUser(t, ts, "alice", "password123")

	resp := postJSON(t, ts.URL+"/api/auth/register", map[string]string{
		"username": "alice",
		"password": "otherpassword",
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Username already exists.", body.Error)
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	ts, _ := newTestStack(t)

	for name, body := range map[string]map[string]string{
		"short password":     {"username": "alice", "password": "short"},
		"missing username":   {"password": "password123"},
		"non-alphanum":       {"username": "a b c", "password": "password123"},
		"username too short": {"username": "ab", "password": "password123"},
	} {
		resp := postJSON(t, ts.URL+"/api/auth/register", body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		_ = resp.Body.Close()
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts, _ := newTestStack(t)
	registerUser(t, ts, "alice", "password123")

	for name, body := range map[string]map[string]string{
		"wrong password": {"username": "alice", "password": "wrongpassword"},
		"unknown user":   {"username": "nobody", "password": "password123"},
	} {
		resp := postJSON(t, ts.URL+"/api/auth/login", body)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
		_ = resp.Body.Close()
	}
}

func TestUsersEndpoint(t *testing.T) {
	ts, _ := newTestStack(t)
	registerUser(t, ts, "alice", "password123")
	registerUser(t, ts, "bob", "password123")
	token := loginUser(t, ts, "alice", "password123")

	resp := authedGet(t, ts.URL+"/api/users", token)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []UserInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Equal(t, []UserInfo{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}, users)
}

func TestUsersRequiresAuth(t *testing.T) {
	ts, _ := newTestStack(t)

	resp := authedGet(t, ts.URL+"/api/users", "")
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = authedGet(t, ts.URL+"/api/users", "not-a-token")
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistoryEndpoint(t *testing.T) {
	ts, st := newTestStack(t)
	registerUser(t, ts, "alice", "password123")
	registerUser(t, ts, "bob", "password123")
	token := loginUser(t, ts, "alice", "password123")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seed := []store.Message{
		{SenderID: 1, ReceiverID: 2, Content: "hi bob", Timestamp: base},
		{SenderID: 2, ReceiverID: 1, Content: "hi alice", Timestamp: base.Add(time.Second)},
		{SenderID: 1, ReceiverID: 3, Content: "other conversation", Timestamp: base.Add(2 * time.Second)},
	}
	for _, msg := range seed {
		msg.ID = uuid.New()
		require.NoError(t, st.SaveMessage(msg))
	}

	resp := authedGet(t, ts.URL+"/api/messages/2", token)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []MessagePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&messages))
	require.Len(t, messages, 2)
	require.Equal(t, "hi bob", messages[0].Content)
	require.Equal(t, "alice", messages[0].SenderUsername)
	require.Equal(t, "bob", messages[0].ReceiverUsername)
	require.Equal(t, "hi alice", messages[1].Content)
	require.True(t, messages[0].Timestamp.Before(messages[1].Timestamp))
}

func TestHistoryInvalidPeer(t *testing.T) {
	ts, _ := newTestStack(t)
	registerUser(t, ts, "alice", "password123")
	token := loginUser(t, ts, "alice", "password123")

	resp := authedGet(t, ts.URL+"/api/messages/zero", token)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketHandshakeRejectsBadTokens(t *testing.T) {
	ts, _ := newTestStack(t)

	for name, query := range map[string]string{
		"missing token":   "",
		"malformed token": "?access_token=garbage",
	} {
		resp, err := http.Get(ts.URL + "/ws" + query)
		require.NoError(t, err, name)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
	}
}
