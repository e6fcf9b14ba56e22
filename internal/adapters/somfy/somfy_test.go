package somfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

// cloudFixture fakes the token endpoint and the API behind it. Only the
// client ID "good" gets a token; API calls check the bearer it minted.
func cloudFixture(t *testing.T) (tokenURL, apiURL string) {
	t.Helper()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		id, _, _ := r.BasicAuth()
		if id == "" {
			id = r.PostForm.Get("client_id")
		}
		if id != "good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	t.Cleanup(tokenServer.Close)

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/site":
			json.NewEncoder(w).Encode(sitesResponse{Sites: []Site{{ID: "site-1", Label: "Home"}}})
		case "/site/site-1/device":
			position := 60
			temp := 20.5
			json.NewEncoder(w).Encode(devicesResponse{Devices: []Device{
				{DeviceURL: "io://1234-5678/1", Label: "Office Blind", Type: "cover", Position: &position},
				{DeviceURL: "io://1234-5678/2", Label: "Hallway", Type: "thermostat", Temperature: &temp},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(apiServer.Close)

	return tokenServer.URL, apiServer.URL
}

func stubAPIClient(t *testing.T, tokenURL, apiURL string) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func(ctx context.Context, clientID, clientSecret string) *Client {
		cfg := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		c := NewClient(cfg.Client(ctx))
		c.baseURL = apiURL
		return c
	}
	t.Cleanup(func() { newAPIClient = orig })
}

func TestGetDevicesThroughTokenSource(t *testing.T) {
	tokenURL, apiURL := cloudFixture(t)
	stubAPIClient(t, tokenURL, apiURL)

	c := newAPIClient(context.Background(), "good", "secret")
	devices, err := c.GetDevices(context.Background(), "site-1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "cover", devices[0].Type)
	require.NotNil(t, devices[0].Position)
	assert.Equal(t, 60, *devices[0].Position)
}

func TestRefusedRefreshIsAuthError(t *testing.T) {
	tokenURL, apiURL := cloudFixture(t)
	stubAPIClient(t, tokenURL, apiURL)

	c := newAPIClient(context.Background(), "revoked", "secret")
	_, err := c.GetSites(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestRejectedTokenIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	c := NewClient(&http.Client{})
	c.baseURL = server.URL

	_, err := c.GetSites(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestBuildEntityMapsDeviceTypes(t *testing.T) {
	position := 0
	cover := buildEntity("entry-1", Device{
		DeviceURL: "io://1234-5678/1", Label: "Office Blind", Type: "cover", Position: &position,
	})
	require.NotNil(t, cover)
	assert.Equal(t, "cover.somfy_io___1234_5678_1", cover.GetID())
	assert.Equal(t, types.StateClosed, cover.GetState())

	temp := 20.5
	target := 21.0
	climate := buildEntity("entry-1", Device{
		DeviceURL: "io://1234-5678/2", Label: "Hallway", Type: "thermostat",
		Temperature: &temp, TargetTemperature: &target,
	})
	require.NotNil(t, climate)
	entity, ok := climate.(*types.HavenClimateEntity)
	require.True(t, ok)
	assert.Equal(t, types.EntityTypeClimate, entity.GetType())
	require.NotNil(t, entity.CurrentTemperature)
	assert.InDelta(t, 20.5, *entity.CurrentTemperature, 0.001)

	assert.Nil(t, buildEntity("entry-1", Device{DeviceURL: "io://x", Type: "gateway"}))
}

func TestFlowValidatesCredentials(t *testing.T) {
	tokenURL, apiURL := cloudFixture(t)
	stubAPIClient(t, tokenURL, apiURL)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	flows := flow.NewManager(log)
	flows.RegisterHandler(&flowHandler{})

	var createdUniqueID string
	flows.Wire(
		func(ctx context.Context, dom, title, uniqueID string, data map[string]interface{}) (string, error) {
			createdUniqueID = uniqueID
			return "entry-1", nil
		},
		func(ctx context.Context, entryID string, data map[string]interface{}) error { return nil },
		func(dom, uniqueID string) bool { return false },
	)

	result, err := flows.Init(context.Background(), domain, flow.KindUser, "")
	require.NoError(t, err)
	flowID := result.FlowID

	result, err = flows.Configure(context.Background(), flowID, map[string]interface{}{
		"client_id": "revoked", "client_secret": "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, "invalid_auth", result.Errors["base"])

	result, err = flows.Configure(context.Background(), flowID, map[string]interface{}{
		"client_id": "good", "client_secret": "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeCreateEntry, result.Type)
	assert.Equal(t, "Home", result.Title)
	assert.Equal(t, "site-1", createdUniqueID)
	assert.Equal(t, "site-1", result.Data["site_id"])
}
