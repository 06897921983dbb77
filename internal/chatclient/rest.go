package chatclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shanjith1316/Capstone-Project/internal/server"
)

// APIClient talks to the server's REST collaborators: registration, login,
// user listing, and history retrieval.
type APIClient struct {
	baseURL string
	httpc   *http.Client
	token   string
}

// NewAPIClient creates a REST client for the given server base URL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns the session token obtained by the last successful Login.
func (c *APIClient) Token() string {
	return c.token
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a new account.
func (c *APIClient) Register(username, password string) error {
	return c.post("/api/auth/register", credentials{Username: username, Password: password}, nil)
}

// Login verifies credentials and stores the issued session token for
// subsequent authenticated calls.
func (c *APIClient) Login(username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post("/api/auth/login", credentials{Username: username, Password: password}, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// Users fetches the registered user list.
func (c *APIClient) Users() ([]server.UserInfo, error) {
	var users []server.UserInfo
	if err := c.get("/api/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// History fetches the conversation with the given peer, ascending by
// timestamp.
func (c *APIClient) History(peerID int64) ([]server.MessagePayload, error) {
	var messages []server.MessagePayload
	if err := c.get(fmt.Sprintf("/api/messages/%d", peerID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *APIClient) post(path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *APIClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
