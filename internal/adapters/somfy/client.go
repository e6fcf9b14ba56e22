package somfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultBaseURL  = "https://api.somfy.com/api/v1"
	defaultTokenURL = "https://accounts.somfy.com/oauth/oauth/v2/token"
)

// ErrUnauthorized is returned when the cloud rejects the access token.
// Revoked credentials also surface as *oauth2.RetrieveError from the token
// source; both map to the auth-failed kind.
type ErrUnauthorized struct{ status int }

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("somfy cloud rejected the token (status %d)", e.status)
}

// Site is one account location
type Site struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Device is one cloud-connected unit. Covers carry a position; thermostats
// carry temperatures.
type Device struct {
	DeviceURL         string   `json:"device_url"`
	Label             string   `json:"label"`
	Type              string   `json:"type"` // "cover", "thermostat"
	Position          *int     `json:"position,omitempty"`
	TargetPosition    *int     `json:"target_position,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TargetTemperature *float64 `json:"target_temperature,omitempty"`
	Battery           *float64 `json:"battery,omitempty"`
}

type sitesResponse struct {
	Sites []Site `json:"sites"`
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}

// Client talks to the Somfy cloud through an OAuth2-authenticated HTTP
// client; the token source refreshes transparently.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewOAuthConfig builds the client-credentials config for one application
func NewOAuthConfig(clientID, clientSecret string) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     defaultTokenURL,
	}
}

// NewClient wraps an authenticated HTTP client. Callers build one from
// NewOAuthConfig's Client method so token refresh stays automatic.
func NewClient(httpClient *http.Client) *Client {
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
	}
}

// GetSites lists the account's locations
func (c *Client) GetSites(ctx context.Context) ([]Site, error) {
	var resp sitesResponse
	if err := c.get(ctx, "/site", &resp); err != nil {
		return nil, err
	}
	return resp.Sites, nil
}

// GetDevices lists all devices of one site
func (c *Client) GetDevices(ctx context.Context, siteID string) ([]Device, error) {
	var resp devicesResponse
	if err := c.get(ctx, "/site/"+siteID+"/device", &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// ExecCommand sends a command to one device
func (c *Client) ExecCommand(ctx context.Context, deviceURL, name string, parameters ...interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"name":       name,
		"parameters": parameters,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/device/"+deviceURL+"/exec", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("somfy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ErrUnauthorized{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("somfy cloud returned status %d for %s", resp.StatusCode, name)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("somfy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ErrUnauthorized{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("somfy cloud returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsAuthError reports whether an error means the credentials are no longer
// good: a rejected token on an API call or a refused refresh at the token
// endpoint (oauth2's RetrieveError, e.g. invalid_grant).
func IsAuthError(err error) bool {
	var unauthorized *ErrUnauthorized
	if errors.As(err, &unauthorized) {
		return true
	}
	var retrieve *oauth2.RetrieveError
	return errors.As(err, &retrieve)
}
