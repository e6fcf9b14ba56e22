package uptimerobot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/adapters"
	"github.com/haven-automation/haven-hub/internal/core/coordinator"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

const (
	domain       = "uptimerobot"
	pollInterval = 60 * time.Second
)

// Adapter exposes UptimeRobot monitors as binary sensors and uptime-ratio
// sensors. One adapter serves one API key.
type Adapter struct {
	*adapters.BaseAdapter
	client *Client
	coord  *coordinator.Coordinator
	logger *logrus.Entry
}

// Register wires the uptimerobot domain into the hub
func Register(s *adapters.Services) {
	s.Flows.RegisterHandler(&flowHandler{})
	s.Entries.Register(domain, func(ctx context.Context, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
		return setupEntry(ctx, s, entry)
	})
}

func setupEntry(ctx context.Context, s *adapters.Services, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
	client := NewClient(entry.GetString("api_key"))
	log := s.Logger.WithFields(logrus.Fields{"domain": domain, "entry_id": entry.ID})

	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(entry.ID, types.SourceUptimeRobot, "UptimeRobot", "1.0"),
		client:      client,
		logger:      log,
	}

	coord := coordinator.New(coordinator.Options{
		Name:     "uptimerobot monitors",
		Domain:   domain,
		EntryID:  entry.ID,
		Interval: pollInterval,
		Timeout:  15 * time.Second,
		Logger:   s.Logger,
		Observer: s.Metrics,
		Update: func(ctx context.Context) (interface{}, error) {
			monitors, err := client.GetMonitors(ctx)
			adapter.MarkSync(err)
			if err != nil {
				var invalidKey *ErrInvalidAPIKey
				if errors.As(err, &invalidKey) {
					return nil, fmt.Errorf("%w: %v", coordinator.ErrAuthFailed, err)
				}
				return nil, fmt.Errorf("%w: %v", coordinator.ErrUpdateFailed, err)
			}
			return monitors, nil
		},
		OnAuthFailed: func(err error) {
			// Only react to runtime failures; during setup the initial
			// refresh error already reaches the entry manager. Reload
			// makes setup revalidate the key and open a reauth flow.
			if adapter.IsConnected() {
				go s.Entries.Reload(context.Background(), entry.ID)
			}
		},
	})
	adapter.coord = coord

	// Push monitor snapshots into the entity service on every refresh
	removeListener := coord.AddListener(func() {
		if !coord.LastUpdateSuccess() {
			s.Entities.MarkEntryUnavailable(entry.ID)
			return
		}
		monitors, ok := coord.Data().([]Monitor)
		if !ok {
			return
		}
		for _, m := range monitors {
			for _, e := range buildEntities(entry.ID, m) {
				if err := s.Entities.Upsert(context.Background(), e); err != nil {
					log.WithError(err).Warn("Failed to upsert monitor entity")
				}
			}
		}
	})

	// First refresh validates the key; its sentinel drives the entry state
	if err := coord.Refresh(ctx); err != nil {
		removeListener()
		return nil, err
	}

	adapter.SetConnected(true)
	s.Adapters.RegisterAdapter(entry.ID, adapter)
	coord.Start(context.Background())

	return func(ctx context.Context) error {
		coord.Shutdown()
		removeListener()
		adapter.SetConnected(false)
		s.Adapters.UnregisterAdapter(adapter.GetID())
		return nil
	}, nil
}

func buildEntities(entryID string, m Monitor) []types.HavenEntity {
	monitorID := fmt.Sprintf("%d", m.ID)

	status := types.StateOff
	available := true
	switch m.Status {
	case StatusUp:
		status = types.StateOn
	case StatusSeemsDown, StatusDown:
		status = types.StateOff
	case StatusPaused, StatusNotCheckedYet:
		status = types.StateUnknown
	default:
		available = false
	}

	binary := &types.HavenBinarySensorEntity{
		HavenBaseEntity: &types.HavenBaseEntity{
			ID:           fmt.Sprintf("binary_sensor.uptimerobot_%s", monitorID),
			Type:         types.EntityTypeBinarySensor,
			FriendlyName: m.FriendlyName,
			State:        status,
			Attributes: map[string]interface{}{
				"target": m.URL,
			},
			LastUpdated: time.Now(),
			Available:   available,
			Metadata: &types.HavenMetadata{
				Source:         types.SourceUptimeRobot,
				SourceEntityID: monitorID,
				EntryID:        entryID,
			},
		},
		DeviceClass: "connectivity",
	}

	ratio := m.UptimeRatio
	sensor := &types.HavenSensorEntity{
		HavenBaseEntity: &types.HavenBaseEntity{
			ID:           fmt.Sprintf("sensor.uptimerobot_%s_uptime", monitorID),
			Type:         types.EntityTypeSensor,
			FriendlyName: m.FriendlyName + " Uptime",
			State:        types.StateActive,
			Attributes: map[string]interface{}{
				"target": m.URL,
			},
			LastUpdated: time.Now(),
			Available:   available,
			Metadata: &types.HavenMetadata{
				Source:         types.SourceUptimeRobot,
				SourceEntityID: monitorID + "_uptime",
				EntryID:        entryID,
			},
		},
		Unit:            "%",
		NumericValue:    &ratio,
		LastMeasurement: time.Now(),
	}

	return []types.HavenEntity{binary, sensor}
}

// Connect is a no-op; the HTTP client is stateless
func (a *Adapter) Connect(ctx context.Context) error { return nil }

// Disconnect stops polling
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.coord.Shutdown()
	a.SetConnected(false)
	return nil
}

// SyncEntities fetches the current monitor set
func (a *Adapter) SyncEntities(ctx context.Context) ([]types.HavenEntity, error) {
	if err := a.coord.Refresh(ctx); err != nil {
		return nil, err
	}
	monitors, _ := a.coord.Data().([]Monitor)
	var out []types.HavenEntity
	for _, m := range monitors {
		out = append(out, buildEntities(a.GetID(), m)...)
	}
	return out, nil
}

// ExecuteAction rejects all actions; monitors are read-only
func (a *Adapter) ExecuteAction(ctx context.Context, action types.HavenControlAction) (*types.HavenControlResult, error) {
	a.MarkAction(false)
	return adapters.ErrActionUnsupported(action)
}

func (a *Adapter) GetSupportedEntityTypes() []types.HavenEntityType {
	return []types.HavenEntityType{types.EntityTypeBinarySensor, types.EntityTypeSensor}
}

func (a *Adapter) GetSupportedCapabilities() []types.HavenCapability { return nil }

// SupportsRealtime is false; monitor state arrives by polling
func (a *Adapter) SupportsRealtime() bool { return false }
