package uptimerobot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient("key-1")
	c.baseURL = server.URL
	return c
}

func TestGetMonitorsParsesResponse(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getMonitors", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "key-1", r.PostForm.Get("api_key"))

		w.Write([]byte(`{
			"stat": "ok",
			"monitors": [
				{"id": 777, "friendly_name": "API server", "url": "https://api.example.com", "status": 2, "all_time_uptime_ratio": "99.92"},
				{"id": 778, "friendly_name": "Docs", "url": "https://docs.example.com", "status": 9, "all_time_uptime_ratio": "87.10"}
			]
		}`))
	})

	monitors, err := c.GetMonitors(context.Background())
	require.NoError(t, err)
	require.Len(t, monitors, 2)
	assert.Equal(t, int64(777), monitors[0].ID)
	assert.Equal(t, StatusUp, monitors[0].Status)
	assert.InDelta(t, 99.92, monitors[0].UptimeRatio, 0.001)
	assert.Equal(t, StatusDown, monitors[1].Status)
}

func TestInvalidAPIKeyError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stat": "fail", "error": {"type": "invalid_api_key", "message": "api_key is wrong"}}`))
	})

	_, err := c.GetMonitors(context.Background())
	require.Error(t, err)
	var invalidKey *ErrInvalidAPIKey
	assert.ErrorAs(t, err, &invalidKey)
}

func TestBuildEntitiesMapsStatus(t *testing.T) {
	out := buildEntities("entry-1", Monitor{
		ID:           42,
		FriendlyName: "API server",
		URL:          "https://api.example.com",
		Status:       StatusUp,
		UptimeRatio:  99.5,
	})
	require.Len(t, out, 2)

	binary, ok := out[0].(*types.HavenBinarySensorEntity)
	require.True(t, ok)
	assert.Equal(t, "binary_sensor.uptimerobot_42", binary.GetID())
	assert.Equal(t, types.StateOn, binary.GetState())
	assert.True(t, binary.IsOn())
	assert.Equal(t, "entry-1", binary.GetEntryID())

	sensor, ok := out[1].(*types.HavenSensorEntity)
	require.True(t, ok)
	assert.Equal(t, "%", sensor.Unit)
	require.NotNil(t, sensor.NumericValue)
	assert.InDelta(t, 99.5, *sensor.NumericValue, 0.001)
}

func TestBuildEntitiesDownMonitor(t *testing.T) {
	out := buildEntities("entry-1", Monitor{ID: 7, Status: StatusDown})
	binary := out[0].(*types.HavenBinarySensorEntity)
	assert.Equal(t, types.StateOff, binary.GetState())
	assert.True(t, binary.IsAvailable())
}

func TestFlowValidatesKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("api_key") == "good" {
			w.Write([]byte(`{"stat": "ok", "account": {"email": "ops@example.com"}}`))
			return
		}
		w.Write([]byte(`{"stat": "fail", "error": {"type": "invalid_api_key", "message": "nope"}}`))
	}))
	t.Cleanup(server.Close)

	orig := newClient
	newClient = func(apiKey string) *Client {
		c := NewClient(apiKey)
		c.baseURL = server.URL
		return c
	}
	t.Cleanup(func() { newClient = orig })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	flows := flow.NewManager(log)
	flows.RegisterHandler(&flowHandler{})

	var createdTitle, createdUniqueID string
	flows.Wire(
		func(ctx context.Context, dom, title, uniqueID string, data map[string]interface{}) (string, error) {
			createdTitle = title
			createdUniqueID = uniqueID
			return "entry-1", nil
		},
		func(ctx context.Context, entryID string, data map[string]interface{}) error { return nil },
		func(dom, uniqueID string) bool { return false },
	)

	result, err := flows.Init(context.Background(), domain, flow.KindUser, "")
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeForm, result.Type)
	flowID := result.FlowID

	result, err = flows.Configure(context.Background(), flowID, map[string]interface{}{"api_key": "bad"})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, "invalid_auth", result.Errors["api_key"])

	result, err = flows.Configure(context.Background(), flowID, map[string]interface{}{"api_key": "good"})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeCreateEntry, result.Type)
	assert.Equal(t, "entry-1", result.EntryID)
	assert.Equal(t, "UptimeRobot (ops@example.com)", createdTitle)
	assert.Equal(t, "ops@example.com", createdUniqueID)
}
