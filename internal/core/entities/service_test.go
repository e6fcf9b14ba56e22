package entities

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-automation/haven-hub/internal/core/metrics"
	"github.com/haven-automation/haven-hub/internal/core/types"
	"github.com/haven-automation/haven-hub/internal/core/types/registries"
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
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.EntityRow, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

func (r *memoryEntityRepo) DeleteByEntry(ctx context.Context, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.EntryID == entryID {
			delete(r.rows, id)
		}
	}
	return nil
}

type memoryDeviceRepo struct {
	mu   sync.Mutex
	rows map[string]*models.DeviceRow
}

func newMemoryDeviceRepo() *memoryDeviceRepo {
	return &memoryDeviceRepo{rows: make(map[string]*models.DeviceRow)}
}

func (r *memoryDeviceRepo) Upsert(ctx context.Context, row *models.DeviceRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = row
	return nil
}

func (r *memoryDeviceRepo) GetAll(ctx context.Context) ([]*models.DeviceRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.DeviceRow, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

func (r *memoryDeviceRepo) DeleteByEntry(ctx context.Context, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.EntryID == entryID {
			delete(r.rows, id)
		}
	}
	return nil
}

type recordingListener struct {
	mu      sync.Mutex
	states  []string
	removed []string
}

func (l *recordingListener) OnEntityState(entity types.HavenEntity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, entity.GetID())
}

func (l *recordingListener) OnEntityRemoved(entityID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, entityID)
}

func testService(t *testing.T) (*Service, *memoryEntityRepo, *memoryDeviceRepo) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	entityRepo := newMemoryEntityRepo()
	deviceRepo := newMemoryDeviceRepo()
	svc := NewService(registries.NewEntityRegistry(log), registries.NewAdapterRegistry(log),
		entityRepo, deviceRepo, metrics.New(prometheus.NewRegistry()), log)
	return svc, entityRepo, deviceRepo
}

func sensor(id, entryID string, state types.HavenEntityState) *types.HavenBaseEntity {
	return &types.HavenBaseEntity{
		ID:           id,
		Type:         types.EntityTypeSensor,
		FriendlyName: id,
		State:        state,
		Available:    true,
		LastUpdated:  time.Now(),
		Metadata: &types.HavenMetadata{
			Source:  types.SourceUptimeRobot,
			EntryID: entryID,
		},
	}
}

func TestRestoreBringsBackEntitiesUnavailable(t *testing.T) {
	svc, entityRepo, _ := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, sensor("sensor.office_uptime", "entry1", types.StateOn)))
	require.NoError(t, svc.Upsert(ctx, sensor("sensor.office_latency", "entry1", types.StateActive)))

	// A fresh service sharing the same store models a process restart.
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	restarted := NewService(registries.NewEntityRegistry(log), registries.NewAdapterRegistry(log),
		entityRepo, newMemoryDeviceRepo(), metrics.New(prometheus.NewRegistry()), log)
	listener := &recordingListener{}
	restarted.AddListener(listener)

	require.NoError(t, restarted.Restore(ctx))

	assert.Equal(t, 2, restarted.Count())
	restored, err := restarted.Get("sensor.office_uptime")
	require.NoError(t, err)
	assert.Equal(t, types.StateOn, restored.GetState())
	assert.False(t, restored.IsAvailable())
	assert.Equal(t, "entry1", restored.GetEntryID())
	assert.Equal(t, types.SourceUptimeRobot, restored.GetSource())
	assert.Len(t, listener.states, 2)
}

func TestRestoreRepopulatesDevices(t *testing.T) {
	svc, entityRepo, deviceRepo := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterDevice(ctx, &types.HavenDevice{
		ID:      "hub1",
		EntryID: "entry1",
		Source:  types.SourceAcmeda,
		Name:    "Living Room Hub",
		Model:   "Pulse Hub",
	}))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	restarted := NewService(registries.NewEntityRegistry(log), registries.NewAdapterRegistry(log),
		entityRepo, deviceRepo, metrics.New(prometheus.NewRegistry()), log)
	require.NoError(t, restarted.Restore(ctx))

	devices := restarted.ListDevices()
	require.Len(t, devices, 1)
	assert.Equal(t, "hub1", devices[0].ID)
	assert.Equal(t, "Living Room Hub", devices[0].Name)
	assert.Equal(t, types.SourceAcmeda, devices[0].Source)
}

func TestListDevicesSortedByName(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterDevice(ctx, &types.HavenDevice{ID: "b", EntryID: "e1", Name: "Zeta Panel"}))
	require.NoError(t, svc.RegisterDevice(ctx, &types.HavenDevice{ID: "a", EntryID: "e1", Name: "Alpha Hub"}))

	devices := svc.ListDevices()
	require.Len(t, devices, 2)
	assert.Equal(t, "Alpha Hub", devices[0].Name)
	assert.Equal(t, "Zeta Panel", devices[1].Name)
}

func TestRemoveEntryClearsEntitiesAndDevices(t *testing.T) {
	svc, entityRepo, deviceRepo := testService(t)
	ctx := context.Background()
	listener := &recordingListener{}
	svc.AddListener(listener)

	require.NoError(t, svc.Upsert(ctx, sensor("sensor.keep", "entry1", types.StateOn)))
	require.NoError(t, svc.Upsert(ctx, sensor("sensor.drop", "entry2", types.StateOn)))
	require.NoError(t, svc.RegisterDevice(ctx, &types.HavenDevice{ID: "dev2", EntryID: "entry2", Name: "Panel"}))

	require.NoError(t, svc.RemoveEntry(ctx, "entry2"))

	assert.Equal(t, 1, svc.Count())
	_, err := svc.Get("sensor.drop")
	assert.Error(t, err)
	assert.Empty(t, svc.ListDevices())
	assert.Contains(t, listener.removed, "sensor.drop")

	rows, err := entityRepo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sensor.keep", rows[0].ID)

	deviceRows, err := deviceRepo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, deviceRows)
}
