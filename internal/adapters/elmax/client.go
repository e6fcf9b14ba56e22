package elmax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrInvalidPIN is returned when the panel rejects the control PIN
type ErrInvalidPIN struct{}

func (e *ErrInvalidPIN) Error() string { return "panel rejected the PIN" }

// ErrSessionExpired is returned when the panel no longer accepts the session
// token; the client re-logins transparently on the next call.
type ErrSessionExpired struct{}

func (e *ErrSessionExpired) Error() string { return "session token expired" }

// PanelInfo identifies a panel, returned by login
type PanelInfo struct {
	Serial   string `json:"serial"`
	Name     string `json:"name"`
	Firmware string `json:"fw_version"`
}

// Zone is one wired or radio detection zone
type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Open   bool   `json:"open"`
	Tamper bool   `json:"tamper"`
}

// Actuator is one controllable output
type Actuator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	On   bool   `json:"on"`
}

// Area is one arming partition
type Area struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Armed bool   `json:"armed"`
}

// PanelState is a full snapshot. The panel pushes the same shape over the
// notification WebSocket, so poll and push paths share it.
type PanelState struct {
	Zones     []Zone     `json:"zones"`
	Actuators []Actuator `json:"actuators"`
	Areas     []Area     `json:"areas"`
}

type loginResponse struct {
	Token string     `json:"token"`
	Panel *PanelInfo `json:"panel"`
}

// Client talks to a panel's local HTTP API. The session token obtained at
// login authenticates both REST calls and the push WebSocket.
type Client struct {
	host       string
	pin        string
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// NewClient creates a panel client; Login must be called before any state
// or control call.
func NewClient(host, pin string) *Client {
	return &Client{
		host:       host,
		pin:        pin,
		baseURL:    "http://" + host + "/api/v2",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Login authenticates with the PIN and stores the session token
func (c *Client) Login(ctx context.Context) (*PanelInfo, error) {
	body, err := json.Marshal(map[string]string{"pin": c.pin})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("panel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &ErrInvalidPIN{}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("panel returned status %d on login", resp.StatusCode)
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return nil, err
	}
	if login.Token == "" || login.Panel == nil {
		return nil, fmt.Errorf("panel returned an incomplete login response")
	}

	c.mu.Lock()
	c.token = login.Token
	c.mu.Unlock()
	return login.Panel, nil
}

// Token returns the current session token, empty before login
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// GetState fetches a full panel snapshot. An expired session triggers one
// re-login before the error is surfaced.
func (c *Client) GetState(ctx context.Context) (*PanelState, error) {
	var state PanelState
	err := c.authed(ctx, http.MethodGet, "/state", nil, &state)
	if err != nil {
		var expired *ErrSessionExpired
		if !errors.As(err, &expired) {
			return nil, err
		}
		if _, err := c.Login(ctx); err != nil {
			return nil, err
		}
		if err := c.authed(ctx, http.MethodGet, "/state", nil, &state); err != nil {
			return nil, err
		}
	}
	return &state, nil
}

// SetActuator switches an output on or off
func (c *Client) SetActuator(ctx context.Context, actuatorID string, on bool) error {
	body := map[string]bool{"on": on}
	err := c.authed(ctx, http.MethodPost, "/actuators/"+actuatorID, body, nil)
	if err != nil {
		var expired *ErrSessionExpired
		if !errors.As(err, &expired) {
			return err
		}
		if _, err := c.Login(ctx); err != nil {
			return err
		}
		return c.authed(ctx, http.MethodPost, "/actuators/"+actuatorID, body, nil)
	}
	return nil
}

func (c *Client) authed(ctx context.Context, method, path string, body, out interface{}) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("panel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &ErrSessionExpired{}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("panel returned status %d for %s", resp.StatusCode, path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
