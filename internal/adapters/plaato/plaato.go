package plaato

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/adapters"
	"github.com/haven-automation/haven-hub/internal/core/coordinator"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

const domain = "plaato"

// Measurement is one webhook delivery from a Plaato device. Keg and airlock
// devices post overlapping sets of fields; absent fields stay nil and
// produce no sensor.
type Measurement struct {
	DeviceName      string   `json:"device_name"`
	DeviceID        string   `json:"device_id"`
	Temperature     *float64 `json:"temp,omitempty"`
	TempUnit        string   `json:"temp_unit,omitempty"`
	SpecificGravity *float64 `json:"sg,omitempty"`
	BPM             *float64 `json:"bpm,omitempty"`
	PercentBeerLeft *float64 `json:"percent_beer_left,omitempty"`
	CO2Volume       *float64 `json:"co2_volume,omitempty"`
	ReceivedAt      time.Time `json:"-"`
}

func parseMeasurement(payload []byte) (*Measurement, error) {
	var m Measurement
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("malformed plaato payload: %w", err)
	}
	m.ReceivedAt = time.Now()
	return &m, nil
}

func updateSignal(entryID string) string {
	return "plaato_update_" + entryID
}

// Adapter exposes one webhook-fed Plaato device. There is no polling; every
// snapshot arrives as an inbound webhook delivery.
type Adapter struct {
	*adapters.BaseAdapter
	coord  *coordinator.Coordinator
	logger *logrus.Entry
}

// Register wires the plaato domain into the hub
func Register(s *adapters.Services) {
	s.Flows.RegisterHandler(&flowHandler{externalURL: s.Config.Webhook.ExternalURL})
	s.Entries.Register(domain, func(ctx context.Context, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
		return setupEntry(ctx, s, entry)
	})
}

func setupEntry(ctx context.Context, s *adapters.Services, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
	webhookID := entry.GetString("webhook_id")
	if webhookID == "" {
		return nil, fmt.Errorf("entry %s carries no webhook_id", entry.ID)
	}
	log := s.Logger.WithFields(logrus.Fields{"domain": domain, "entry_id": entry.ID})

	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(entry.ID, types.SourcePlaato, "Plaato", "1.0"),
		logger:      log,
	}

	// Push-only: zero interval, data arrives via SetUpdatedData
	coord := coordinator.New(coordinator.Options{
		Name:    "plaato webhook",
		Domain:  domain,
		EntryID: entry.ID,
		Logger:  s.Logger,
		Update: func(ctx context.Context) (interface{}, error) {
			return nil, fmt.Errorf("%w: plaato has no poll path", coordinator.ErrUpdateFailed)
		},
	})
	adapter.coord = coord

	removeListener := coord.AddListener(func() {
		m, ok := coord.Data().(*Measurement)
		if !ok {
			return
		}
		for _, e := range buildSensors(entry, m) {
			if err := s.Entities.Upsert(context.Background(), e); err != nil {
				log.WithError(err).Warn("Failed to upsert plaato sensor")
			}
		}
	})

	// Webhook deliveries fan out over the dispatcher; the entry's own
	// subscription feeds the coordinator.
	disconnect := s.Dispatch.Connect(updateSignal(entry.ID), func(payload interface{}) {
		if m, ok := payload.(*Measurement); ok {
			coord.SetUpdatedData(m)
		}
	})

	err := s.Webhooks.Register(webhookID, domain, entry.ID, func(ctx context.Context, payload []byte) error {
		m, err := parseMeasurement(payload)
		if err != nil {
			return err
		}
		adapter.MarkSync(nil)
		s.Dispatch.Send(updateSignal(entry.ID), m)
		return nil
	})
	if err != nil {
		disconnect()
		removeListener()
		return nil, err
	}

	if err := s.Entities.RegisterDevice(ctx, &types.HavenDevice{
		ID:      "plaato_" + entry.ID,
		EntryID: entry.ID,
		Source:  types.SourcePlaato,
		Name:    entry.GetString("name"),
		Model:   entry.GetString("device_type"),
	}); err != nil {
		log.WithError(err).Warn("Failed to register plaato device")
	}

	adapter.SetConnected(true)
	s.Adapters.RegisterAdapter(entry.ID, adapter)

	return func(ctx context.Context) error {
		s.Webhooks.Unregister(webhookID)
		disconnect()
		coord.Shutdown()
		removeListener()
		adapter.SetConnected(false)
		s.Adapters.UnregisterAdapter(adapter.GetID())
		return nil
	}, nil
}

func buildSensors(entry *entries.ConfigEntry, m *Measurement) []types.HavenEntity {
	name := entry.GetString("name")
	if m.DeviceName != "" {
		name = m.DeviceName
	}

	var out []types.HavenEntity
	add := func(suffix, friendly, unit string, value float64, caps []types.HavenCapability) {
		v := value
		out = append(out, &types.HavenSensorEntity{
			HavenBaseEntity: &types.HavenBaseEntity{
				ID:           fmt.Sprintf("sensor.plaato_%s_%s", shortEntryID(entry.ID), suffix),
				Type:         types.EntityTypeSensor,
				FriendlyName: name + " " + friendly,
				State:        types.StateActive,
				Attributes:   map[string]interface{}{},
				LastUpdated:  m.ReceivedAt,
				Capabilities: caps,
				Available:    true,
				Metadata: &types.HavenMetadata{
					Source:         types.SourcePlaato,
					SourceEntityID: suffix,
					EntryID:        entry.ID,
				},
			},
			Unit:            unit,
			NumericValue:    &v,
			LastMeasurement: m.ReceivedAt,
		})
	}

	if m.Temperature != nil {
		unit := m.TempUnit
		if unit == "" {
			unit = "°C"
		}
		add("temperature", "Temperature", unit, *m.Temperature,
			[]types.HavenCapability{types.CapabilityTemperature})
	}
	if m.SpecificGravity != nil {
		add("gravity", "Specific Gravity", "SG", *m.SpecificGravity, nil)
	}
	if m.BPM != nil {
		add("bpm", "Bubbles", "bpm", *m.BPM, nil)
	}
	if m.PercentBeerLeft != nil {
		add("beer_left", "Beer Left", "%", *m.PercentBeerLeft, nil)
	}
	if m.CO2Volume != nil {
		add("co2_volume", "CO2 Volume", "L", *m.CO2Volume, nil)
	}
	return out
}

func shortEntryID(entryID string) string {
	if len(entryID) > 8 {
		return entryID[:8]
	}
	return entryID
}

// Connect is a no-op; the device initiates every contact
func (a *Adapter) Connect(ctx context.Context) error { return nil }

// Disconnect drops the coordinator
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.coord.Shutdown()
	a.SetConnected(false)
	return nil
}

// SyncEntities returns the sensors built from the last delivery. There is
// nothing to fetch; the device pushes on its own schedule.
func (a *Adapter) SyncEntities(ctx context.Context) ([]types.HavenEntity, error) {
	return nil, nil
}

// ExecuteAction rejects all actions; Plaato devices are read-only
func (a *Adapter) ExecuteAction(ctx context.Context, action types.HavenControlAction) (*types.HavenControlResult, error) {
	a.MarkAction(false)
	return adapters.ErrActionUnsupported(action)
}

func (a *Adapter) GetSupportedEntityTypes() []types.HavenEntityType {
	return []types.HavenEntityType{types.EntityTypeSensor}
}

func (a *Adapter) GetSupportedCapabilities() []types.HavenCapability {
	return []types.HavenCapability{types.CapabilityTemperature}
}

// SupportsRealtime is true; every delivery is an immediate push
func (a *Adapter) SupportsRealtime() bool { return true }
