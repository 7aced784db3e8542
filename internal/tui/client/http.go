package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// HTTPClient makes REST calls to the raidwatch server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Managers fetches /api/managers.
func (c *HTTPClient) Managers() ([]Manager, error) {
	var out []Manager
	if err := c.get("/api/managers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sessions fetches /api/sessions.
func (c *HTTPClient) Sessions() ([]*SessionState, error) {
	var out []*SessionState
	if err := c.get("/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Processes fetches the candidate targets for a manager.
func (c *HTTPClient) Processes(managerID string) ([]Process, error) {
	var out []Process
	if err := c.get("/api/processes?manager="+url.QueryEscape(managerID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Start sends POST /api/managers/{id}/start. With no pids the server picks
// the target itself.
func (c *HTTPClient) Start(managerID string, pids ...int32) (*SessionState, error) {
	body := map[string][]int32{"pids": pids}
	var out SessionState
	if err := c.post("/api/managers/"+url.PathEscape(managerID)+"/start", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop sends POST /api/managers/{id}/stop.
func (c *HTTPClient) Stop(managerID string) error {
	return c.post("/api/managers/"+url.PathEscape(managerID)+"/stop", nil, nil)
}

func (c *HTTPClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("GET %s: %d %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) post(path string, body interface{}, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.Errorf("POST %s: %d %s", path, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
