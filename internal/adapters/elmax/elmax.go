package elmax

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
	domain = "elmax"

	// Push frames carry the real-time state; the poll is a safety net for
	// missed frames and long socket outages.
	safetyPollInterval = 5 * time.Minute
)

// Adapter exposes one Elmax panel: zone binary sensors, actuator switches
// and an arm-state sensor per area. State arrives over the panel's push
// WebSocket; commands go through the REST API.
type Adapter struct {
	*adapters.BaseAdapter
	client *Client
	coord  *coordinator.Coordinator
	socket *pushSocket
	logger *logrus.Entry
}

// Register wires the elmax domain into the hub
func Register(s *adapters.Services) {
	s.Flows.RegisterHandler(&flowHandler{})
	s.Entries.Register(domain, func(ctx context.Context, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
		return setupEntry(ctx, s, entry)
	})
}

func setupEntry(ctx context.Context, s *adapters.Services, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
	host := entry.GetString("host")
	client := newClient(host, entry.GetString("pin"))
	log := s.Logger.WithFields(logrus.Fields{"domain": domain, "entry_id": entry.ID})

	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(entry.ID, types.SourceElmax, "Elmax Panel", "1.0"),
		client:      client,
		logger:      log,
	}

	// Login validates the PIN; its failure kind drives the entry state
	info, err := client.Login(ctx)
	if err != nil {
		var invalidPIN *ErrInvalidPIN
		if errors.As(err, &invalidPIN) {
			return nil, fmt.Errorf("%w: %v", coordinator.ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("%w: panel at %s: %v", coordinator.ErrNotReady, host, err)
	}

	if err := s.Entities.RegisterDevice(ctx, &types.HavenDevice{
		ID:           info.Serial,
		EntryID:      entry.ID,
		Source:       types.SourceElmax,
		Name:         info.Name,
		Manufacturer: "Elmax",
		Model:        "Control Panel",
		SWVersion:    info.Firmware,
	}); err != nil {
		log.WithError(err).Warn("Failed to register panel device")
	}

	coord := coordinator.New(coordinator.Options{
		Name:     "elmax panel",
		Domain:   domain,
		EntryID:  entry.ID,
		Interval: safetyPollInterval,
		Timeout:  15 * time.Second,
		Logger:   s.Logger,
		Observer: s.Metrics,
		Update: func(ctx context.Context) (interface{}, error) {
			state, err := client.GetState(ctx)
			adapter.MarkSync(err)
			if err != nil {
				var invalidPIN *ErrInvalidPIN
				if errors.As(err, &invalidPIN) {
					return nil, fmt.Errorf("%w: %v", coordinator.ErrAuthFailed, err)
				}
				return nil, fmt.Errorf("%w: %v", coordinator.ErrUpdateFailed, err)
			}
			return state, nil
		},
		OnAuthFailed: func(err error) {
			if adapter.IsConnected() {
				go s.Entries.Reload(context.Background(), entry.ID)
			}
		},
	})
	adapter.coord = coord

	removeListener := coord.AddListener(func() {
		if !coord.LastUpdateSuccess() {
			s.Entities.MarkEntryUnavailable(entry.ID)
			return
		}
		state, ok := coord.Data().(*PanelState)
		if !ok {
			return
		}
		for _, e := range buildEntities(entry.ID, state) {
			if err := s.Entities.Upsert(context.Background(), e); err != nil {
				log.WithError(err).Warn("Failed to upsert panel entity")
			}
		}
	})

	if err := coord.Refresh(ctx); err != nil {
		removeListener()
		return nil, err
	}

	socket := newPushSocket(client, "ws://"+host+"/api/v2/push", func(state *PanelState) {
		coord.SetUpdatedData(state)
	}, log)
	adapter.socket = socket

	adapter.SetConnected(true)
	s.Adapters.RegisterAdapter(entry.ID, adapter)
	socket.Start(context.Background())
	coord.Start(context.Background())

	return func(ctx context.Context) error {
		socket.Stop()
		coord.Shutdown()
		removeListener()
		adapter.SetConnected(false)
		s.Adapters.UnregisterAdapter(adapter.GetID())
		return nil
	}, nil
}

func buildEntities(entryID string, state *PanelState) []types.HavenEntity {
	out := make([]types.HavenEntity, 0, len(state.Zones)+len(state.Actuators)+len(state.Areas))

	for _, z := range state.Zones {
		zoneState := types.StateOff
		if z.Open {
			zoneState = types.StateOn
		}
		attrs := map[string]interface{}{}
		if z.Tamper {
			attrs["tamper"] = true
		}
		out = append(out, &types.HavenBinarySensorEntity{
			HavenBaseEntity: &types.HavenBaseEntity{
				ID:           "binary_sensor.elmax_zone_" + z.ID,
				Type:         types.EntityTypeBinarySensor,
				FriendlyName: z.Name,
				State:        zoneState,
				Attributes:   attrs,
				LastUpdated:  time.Now(),
				Available:    true,
				Metadata: &types.HavenMetadata{
					Source:         types.SourceElmax,
					SourceEntityID: z.ID,
					EntryID:        entryID,
				},
			},
			DeviceClass: "opening",
		})
	}

	for _, a := range state.Actuators {
		actuatorState := types.StateOff
		if a.On {
			actuatorState = types.StateOn
		}
		out = append(out, &types.HavenSwitchEntity{
			HavenBaseEntity: &types.HavenBaseEntity{
				ID:           "switch.elmax_" + a.ID,
				Type:         types.EntityTypeSwitch,
				FriendlyName: a.Name,
				State:        actuatorState,
				Attributes:   map[string]interface{}{},
				LastUpdated:  time.Now(),
				Available:    true,
				Metadata: &types.HavenMetadata{
					Source:         types.SourceElmax,
					SourceEntityID: a.ID,
					EntryID:        entryID,
				},
			},
		})
	}

	for _, area := range state.Areas {
		areaState := types.StateDisarmed
		if area.Armed {
			areaState = types.StateArmed
		}
		out = append(out, &types.HavenSensorEntity{
			HavenBaseEntity: &types.HavenBaseEntity{
				ID:           "sensor.elmax_area_" + area.ID,
				Type:         types.EntityTypeSensor,
				FriendlyName: area.Name,
				State:        areaState,
				Attributes:   map[string]interface{}{},
				LastUpdated:  time.Now(),
				Capabilities: []types.HavenCapability{types.CapabilityArmable},
				Available:    true,
				Metadata: &types.HavenMetadata{
					Source:         types.SourceElmax,
					SourceEntityID: area.ID,
					EntryID:        entryID,
				},
			},
		})
	}

	return out
}

// actuatorID recovers the panel-side actuator ID from an action's entity ID
func (a *Adapter) actuatorID(entityID string) (string, error) {
	state, _ := a.coord.Data().(*PanelState)
	if state != nil {
		for _, act := range state.Actuators {
			if "switch.elmax_"+act.ID == entityID {
				return act.ID, nil
			}
		}
	}
	return "", fmt.Errorf("no actuator backs entity %s", entityID)
}

// Connect re-logins to the panel
func (a *Adapter) Connect(ctx context.Context) error {
	if _, err := a.client.Login(ctx); err != nil {
		return err
	}
	a.SetConnected(true)
	return nil
}

// Disconnect stops the push socket and the safety poll
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.socket != nil {
		a.socket.Stop()
	}
	a.coord.Shutdown()
	a.SetConnected(false)
	return nil
}

// SyncEntities fetches a fresh panel snapshot and rebuilds the entity set
func (a *Adapter) SyncEntities(ctx context.Context) ([]types.HavenEntity, error) {
	if err := a.coord.Refresh(ctx); err != nil {
		return nil, err
	}
	state, ok := a.coord.Data().(*PanelState)
	if !ok {
		return nil, nil
	}
	return buildEntities(a.GetID(), state), nil
}

// ExecuteAction switches an actuator; zones and areas are read-only
func (a *Adapter) ExecuteAction(ctx context.Context, action types.HavenControlAction) (*types.HavenControlResult, error) {
	var on bool
	switch action.Action {
	case "turn_on":
		on = true
	case "turn_off":
		on = false
	default:
		a.MarkAction(false)
		return adapters.ErrActionUnsupported(action)
	}

	actuatorID, err := a.actuatorID(action.EntityID)
	if err != nil {
		a.MarkAction(false)
		return nil, err
	}

	if err := a.client.SetActuator(ctx, actuatorID, on); err != nil {
		a.MarkAction(false)
		return nil, fmt.Errorf("panel rejected %s for %s: %w", action.Action, action.EntityID, err)
	}
	a.MarkAction(true)

	newState := types.StateOff
	if on {
		newState = types.StateOn
	}
	return &types.HavenControlResult{
		Success:  true,
		EntityID: action.EntityID,
		Action:   action.Action,
		NewState: newState,
	}, nil
}

func (a *Adapter) GetSupportedEntityTypes() []types.HavenEntityType {
	return []types.HavenEntityType{
		types.EntityTypeBinarySensor,
		types.EntityTypeSwitch,
		types.EntityTypeSensor,
	}
}

func (a *Adapter) GetSupportedCapabilities() []types.HavenCapability {
	return []types.HavenCapability{types.CapabilityArmable}
}

// SupportsRealtime is true; the panel pushes state over its WebSocket
func (a *Adapter) SupportsRealtime() bool { return true }
