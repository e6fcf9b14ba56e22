package uptimerobot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.uptimerobot.com/v2"

// Monitor statuses reported by the API
const (
	StatusPaused         = 0
	StatusNotCheckedYet  = 1
	StatusUp             = 2
	StatusSeemsDown      = 8
	StatusDown           = 9
)

// Monitor is one monitored check
type Monitor struct {
	ID           int64   `json:"id"`
	FriendlyName string  `json:"friendly_name"`
	URL          string  `json:"url"`
	Type         int     `json:"type"`
	Status       int     `json:"status"`
	UptimeRatio  float64 `json:"all_time_uptime_ratio,string"`
}

// Account identifies the API key owner
type Account struct {
	Email         string `json:"email"`
	MonitorLimit  int    `json:"monitor_limit"`
	UpMonitors    int    `json:"up_monitors"`
	DownMonitors  int    `json:"down_monitors"`
	PausedMonitors int   `json:"paused_monitors"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type apiResponse struct {
	Stat     string    `json:"stat"`
	Error    *apiError `json:"error,omitempty"`
	Account  *Account  `json:"account,omitempty"`
	Monitors []Monitor `json:"monitors,omitempty"`
}

// ErrInvalidAPIKey is returned when the API rejects the key
type ErrInvalidAPIKey struct{ msg string }

func (e *ErrInvalidAPIKey) Error() string { return "invalid api key: " + e.msg }

// Client talks to the UptimeRobot v2 API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// newClient is swapped in tests to point at a local server
var newClient = NewClient

// NewClient creates an API client
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetAccount fetches the account owning the API key
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	resp, err := c.post(ctx, "/getAccountDetails", url.Values{})
	if err != nil {
		return nil, err
	}
	if resp.Account == nil {
		return nil, fmt.Errorf("account details missing from response")
	}
	return resp.Account, nil
}

// GetMonitors fetches all monitors with their uptime ratios
func (c *Client) GetMonitors(ctx context.Context) ([]Monitor, error) {
	params := url.Values{}
	params.Set("all_time_uptime_ratio", "1")

	resp, err := c.post(ctx, "/getMonitors", params)
	if err != nil {
		return nil, err
	}
	return resp.Monitors, nil
}

func (c *Client) post(ctx context.Context, path string, params url.Values) (*apiResponse, error) {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.Stat != "ok" {
		if resp.Error != nil && (resp.Error.Type == "invalid_parameter" || resp.Error.Type == "invalid_api_key") {
			return nil, &ErrInvalidAPIKey{msg: resp.Error.Message}
		}
		msg := "unknown error"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return nil, fmt.Errorf("api error: %s", msg)
	}
	return &resp, nil
}
