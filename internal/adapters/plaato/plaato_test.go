package plaato

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-automation/haven-hub/internal/adapters"
	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/core/dispatcher"
	"github.com/haven-automation/haven-hub/internal/core/entities"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/metrics"
	"github.com/haven-automation/haven-hub/internal/core/types"
	"github.com/haven-automation/haven-hub/internal/core/types/registries"
	"github.com/haven-automation/haven-hub/internal/core/webhook"
	"github.com/haven-automation/haven-hub/internal/database/models"
)

type memoryEntityRepo struct {
	mu   sync.Mutex
	rows map[string]*models.EntityRow
}

func newMemoryEntityRepo() *memoryEntityRepo {
	return &memoryEntityRepo{rows: make(map[string]*models.EntityRow)}
}

func (r *memoryEntityRepo) Upsert(ctx context.Context, row *models.EntityRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = row
	return nil
}

func (r *memoryEntityRepo) GetAll(ctx context.Context) ([]*models.EntityRow, error) {
	return nil, nil
}

func (r *memoryEntityRepo) DeleteByEntry(ctx context.Context, entryID string) error {
	return nil
}

type memoryDeviceRepo struct{}

func (r *memoryDeviceRepo) Upsert(ctx context.Context, row *models.DeviceRow) error { return nil }

func (r *memoryDeviceRepo) GetAll(ctx context.Context) ([]*models.DeviceRow, error) {
	return nil, nil
}

func (r *memoryDeviceRepo) DeleteByEntry(ctx context.Context, entryID string) error { return nil }

func testServices(t *testing.T) *adapters.Services {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	adapterReg := registries.NewAdapterRegistry(log)
	return &adapters.Services{
		Config:   &config.Config{},
		Logger:   log,
		Entities: entities.NewService(registries.NewEntityRegistry(log), adapterReg, newMemoryEntityRepo(), &memoryDeviceRepo{}, metrics.New(prometheus.NewRegistry()), log),
		Adapters: adapterReg,
		Webhooks: webhook.NewRegistry(log),
		Dispatch: dispatcher.New(log),
	}
}

func TestParseMeasurementRejectsGarbage(t *testing.T) {
	_, err := parseMeasurement([]byte("not json"))
	assert.Error(t, err)
}

func TestWebhookDeliveryUpdatesSensors(t *testing.T) {
	s := testServices(t)
	entry := &entries.ConfigEntry{
		ID:     "entry-plaato-1",
		Domain: domain,
		Data: map[string]interface{}{
			"name":       "Garage Keg",
			"webhook_id": "0123456789abcdef0123456789abcdef",
		},
	}

	unload, err := setupEntry(context.Background(), s, entry)
	require.NoError(t, err)

	payload := []byte(`{"device_name": "Garage Keg", "temp": 18.5, "temp_unit": "°C", "sg": 1.012, "percent_beer_left": 64.2}`)
	gotDomain, err := s.Webhooks.Handle(context.Background(), "0123456789abcdef0123456789abcdef", payload)
	require.NoError(t, err)
	assert.Equal(t, domain, gotDomain)

	temp, err := s.Entities.Get("sensor.plaato_entry-pl_temperature")
	require.NoError(t, err)
	sensor, ok := temp.(*types.HavenSensorEntity)
	require.True(t, ok)
	require.NotNil(t, sensor.NumericValue)
	assert.InDelta(t, 18.5, *sensor.NumericValue, 0.001)
	assert.Equal(t, "°C", sensor.Unit)

	beer, err := s.Entities.Get("sensor.plaato_entry-pl_beer_left")
	require.NoError(t, err)
	assert.InDelta(t, 64.2, *beer.(*types.HavenSensorEntity).NumericValue, 0.001)

	// No bpm in the payload, so no bubbles sensor
	_, err = s.Entities.Get("sensor.plaato_entry-pl_bpm")
	assert.Error(t, err)

	require.NoError(t, unload(context.Background()))
	_, err = s.Webhooks.Handle(context.Background(), "0123456789abcdef0123456789abcdef", payload)
	assert.ErrorIs(t, err, webhook.ErrNotFound)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	s := testServices(t)
	entry := &entries.ConfigEntry{
		ID:     "entry-plaato-2",
		Domain: domain,
		Data: map[string]interface{}{
			"name":       "Airlock",
			"webhook_id": "feedfacefeedfacefeedfacefeedface",
		},
	}

	unload, err := setupEntry(context.Background(), s, entry)
	require.NoError(t, err)
	defer unload(context.Background())

	_, err = s.Webhooks.Handle(context.Background(), "feedfacefeedfacefeedfacefeedface", []byte("not json"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, webhook.ErrNotFound)
}

func TestFlowMintsWebhookID(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	flows := flow.NewManager(log)
	flows.RegisterHandler(&flowHandler{externalURL: "https://haven.example.com"})

	var createdData map[string]interface{}
	flows.Wire(
		func(ctx context.Context, dom, title, uniqueID string, data map[string]interface{}) (string, error) {
			createdData = data
			return "entry-1", nil
		},
		func(ctx context.Context, entryID string, data map[string]interface{}) error { return nil },
		func(dom, uniqueID string) bool { return false },
	)

	result, err := flows.Init(context.Background(), domain, flow.KindUser, "")
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeForm, result.Type)

	result, err = flows.Configure(context.Background(), result.FlowID, map[string]interface{}{
		"name": "Garage Keg",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultTypeCreateEntry, result.Type)

	webhookID, _ := createdData["webhook_id"].(string)
	assert.Len(t, webhookID, 32)
	assert.Equal(t, "keg", createdData["device_type"])
	assert.True(t, strings.HasSuffix(result.Placeholders["callback_url"], webhookID))
	assert.True(t, strings.HasPrefix(result.Placeholders["callback_url"], "https://haven.example.com/api/v1/webhook/"))
}
