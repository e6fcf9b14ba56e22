package elmax

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-automation/haven-hub/internal/core/coordinator"
	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

func panelServer(t *testing.T, pin string) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["pin"] != pin {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token": "tok-1",
			"panel": map[string]string{"serial": "EL-0042", "name": "Main Panel"},
		})
	})
	mux.HandleFunc("/api/v2/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(PanelState{
			Zones:     []Zone{{ID: "z1", Name: "Front Door", Open: true}},
			Actuators: []Actuator{{ID: "a1", Name: "Gate", On: false}},
			Areas:     []Area{{ID: "p1", Name: "House", Armed: true}},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := NewClient("127.0.0.1", pin)
	c.baseURL = server.URL + "/api/v2"
	return server, c
}

func TestLoginStoresToken(t *testing.T) {
	_, c := panelServer(t, "1234")

	info, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EL-0042", info.Serial)
	assert.Equal(t, "tok-1", c.Token())
}

func TestLoginInvalidPIN(t *testing.T) {
	_, c := panelServer(t, "1234")
	c.pin = "9999"

	_, err := c.Login(context.Background())
	var invalidPIN *ErrInvalidPIN
	assert.ErrorAs(t, err, &invalidPIN)
}

func TestGetStateReloginsOnExpiredSession(t *testing.T) {
	_, c := panelServer(t, "1234")
	c.token = "stale"

	state, err := c.GetState(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Zones, 1)
	assert.Equal(t, "tok-1", c.Token())
}

func TestBuildEntitiesMapsPanelState(t *testing.T) {
	out := buildEntities("entry-1", &PanelState{
		Zones:     []Zone{{ID: "z1", Name: "Front Door", Open: true, Tamper: true}},
		Actuators: []Actuator{{ID: "a1", Name: "Gate", On: true}},
		Areas:     []Area{{ID: "p1", Name: "House", Armed: false}},
	})
	require.Len(t, out, 3)

	zone := out[0].(*types.HavenBinarySensorEntity)
	assert.Equal(t, "binary_sensor.elmax_zone_z1", zone.GetID())
	assert.Equal(t, types.StateOn, zone.GetState())
	assert.Equal(t, true, zone.GetAttributes()["tamper"])

	actuator := out[1].(*types.HavenSwitchEntity)
	assert.Equal(t, "switch.elmax_a1", actuator.GetID())
	assert.Equal(t, types.StateOn, actuator.GetState())

	area := out[2].(*types.HavenSensorEntity)
	assert.Equal(t, "sensor.elmax_area_p1", area.GetID())
	assert.Equal(t, types.StateDisarmed, area.GetState())
}

func TestPushFramesReachCoordinator(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(PanelState{
			Zones: []Zone{{ID: "z1", Name: "Front Door", Open: true}},
		}))
		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	coord := coordinator.New(coordinator.Options{
		Name:   "elmax panel",
		Domain: domain,
		Update: func(ctx context.Context) (interface{}, error) { return nil, nil },
	})

	var pushes int64
	coord.AddListener(func() { atomic.AddInt64(&pushes, 1) })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	socket := newPushSocket(NewClient("127.0.0.1", "1234"), wsURL, func(state *PanelState) {
		coord.SetUpdatedData(state)
	}, log.WithField("domain", domain))

	socket.Start(context.Background())
	defer socket.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&pushes) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	state, ok := coord.Data().(*PanelState)
	require.True(t, ok)
	require.Len(t, state.Zones, 1)
	assert.True(t, state.Zones[0].Open)
	assert.True(t, coord.LastUpdateSuccess())
}

// A flapping panel must not pile up one connection watcher per reconnect;
// every goroutine spawned for a connection has to exit with it.
func TestReconnectsDoNotAccumulateWatchers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt64(&dials, 1)
		conn.Close()
	}))
	t.Cleanup(server.Close)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	socket := newPushSocket(NewClient("127.0.0.1", "1234"), wsURL, func(*PanelState) {}, log.WithField("domain", domain))
	socket.minReconnect = 5 * time.Millisecond
	socket.maxReconnect = 20 * time.Millisecond

	socket.Start(context.Background())
	defer socket.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&dials) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	base := runtime.NumGoroutine()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&dials) >= 13
	}, 10*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= base+4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlowInvalidPIN(t *testing.T) {
	server, _ := panelServer(t, "1234")

	orig := newClient
	newClient = func(host, pin string) *Client {
		c := NewClient(host, pin)
		c.baseURL = server.URL + "/api/v2"
		return c
	}
	t.Cleanup(func() { newClient = orig })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	flows := flow.NewManager(log)
	flows.RegisterHandler(&flowHandler{})
	flows.Wire(
		func(ctx context.Context, dom, title, uniqueID string, data map[string]interface{}) (string, error) {
			return "entry-1", nil
		},
		func(ctx context.Context, entryID string, data map[string]interface{}) error { return nil },
		func(dom, uniqueID string) bool { return false },
	)

	result, err := flows.Init(context.Background(), domain, flow.KindUser, "")
	require.NoError(t, err)
	flowID := result.FlowID

	result, err = flows.Configure(context.Background(), flowID, map[string]interface{}{
		"host": "192.168.1.20", "pin": "0000",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeForm, result.Type)
	assert.Equal(t, "invalid_auth", result.Errors["pin"])

	result, err = flows.Configure(context.Background(), flowID, map[string]interface{}{
		"host": "192.168.1.20", "pin": "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeCreateEntry, result.Type)
	assert.Equal(t, "Main Panel", result.Title)
}
