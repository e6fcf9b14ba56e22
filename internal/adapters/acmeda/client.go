package acmeda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// DefaultPort is the local API port of a Pulse hub
const DefaultPort = 12416

// HubInfo identifies a hub
type HubInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Firmware string `json:"fw_version"`
}

// Roller is one motorized cover paired with the hub. Position is percent
// open: 0 closed, 100 fully open. Target is nil when the roller is at rest.
type Roller struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Target   *int     `json:"target,omitempty"`
	Battery  *float64 `json:"battery,omitempty"`
	Signal   int      `json:"signal"`
}

type rollersResponse struct {
	Rollers []Roller `json:"rollers"`
}

// Client talks to the hub's local HTTP API. The hub answers every roller in
// one request, so a single poll covers the whole entry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the hub at host. A bare host gets the
// default port appended.
func NewClient(host string) *Client {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(DefaultPort))
	}
	return &Client{
		baseURL:    "http://" + host + "/api",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetHubInfo fetches the hub identity, used as the entry's unique ID
func (c *Client) GetHubInfo(ctx context.Context) (*HubInfo, error) {
	var info HubInfo
	if err := c.get(ctx, "/hub", &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, fmt.Errorf("hub returned no ID")
	}
	return &info, nil
}

// GetRollers fetches the state of every paired roller in one request
func (c *Client) GetRollers(ctx context.Context) ([]Roller, error) {
	var resp rollersResponse
	if err := c.get(ctx, "/rollers", &resp); err != nil {
		return nil, err
	}
	return resp.Rollers, nil
}

// MoveTo drives a roller toward a target position
func (c *Client) MoveTo(ctx context.Context, rollerID string, position int) error {
	if position < 0 || position > 100 {
		return fmt.Errorf("position %d out of range 0-100", position)
	}
	body := map[string]int{"position": position}
	return c.put(ctx, "/rollers/"+rollerID+"/position", body)
}

// Stop halts a moving roller where it is
func (c *Client) Stop(ctx context.Context, rollerID string) error {
	return c.put(ctx, "/rollers/"+rollerID+"/stop", nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) put(ctx context.Context, path string, body interface{}) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("hub returned status %d for %s", resp.StatusCode, path)
	}
	return nil
}
