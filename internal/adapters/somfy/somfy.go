package somfy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/adapters"
	"github.com/haven-automation/haven-hub/internal/core/coordinator"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

const (
	domain       = "somfy"
	pollInterval = 2 * time.Minute
)

// Adapter exposes one Somfy site: covers and thermostats. The cloud is the
// only path to the devices; commands and state both go through it.
type Adapter struct {
	*adapters.BaseAdapter
	client *Client
	siteID string
	coord  *coordinator.Coordinator
	logger *logrus.Entry
}

// Register wires the somfy domain into the hub
func Register(s *adapters.Services) {
	s.Flows.RegisterHandler(&flowHandler{})
	s.Entries.Register(domain, func(ctx context.Context, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
		return setupEntry(ctx, s, entry)
	})
}

func setupEntry(ctx context.Context, s *adapters.Services, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
	siteID := entry.GetString("site_id")
	client := newAPIClient(context.Background(), entry.GetString("client_id"), entry.GetString("client_secret"))
	log := s.Logger.WithFields(logrus.Fields{"domain": domain, "entry_id": entry.ID})

	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(entry.ID, types.SourceSomfy, "Somfy", "1.0"),
		client:      client,
		siteID:      siteID,
		logger:      log,
	}

	coord := coordinator.New(coordinator.Options{
		Name:     "somfy devices",
		Domain:   domain,
		EntryID:  entry.ID,
		Interval: pollInterval,
		Timeout:  30 * time.Second,
		Logger:   s.Logger,
		Observer: s.Metrics,
		Update: func(ctx context.Context) (interface{}, error) {
			devices, err := client.GetDevices(ctx, siteID)
			adapter.MarkSync(err)
			if err != nil {
				if IsAuthError(err) {
					return nil, fmt.Errorf("%w: %v", coordinator.ErrAuthFailed, err)
				}
				return nil, fmt.Errorf("%w: %v", coordinator.ErrUpdateFailed, err)
			}
			return devices, nil
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
		devices, ok := coord.Data().([]Device)
		if !ok {
			return
		}
		for _, d := range devices {
			entity := buildEntity(entry.ID, d)
			if entity == nil {
				continue
			}
			if err := s.Entities.Upsert(context.Background(), entity); err != nil {
				log.WithError(err).Warn("Failed to upsert somfy entity")
			}
		}
	})

	// First poll validates the credentials; its sentinel drives the entry
	// state, including auth-failed into a reauth flow
	if err := coord.Refresh(ctx); err != nil {
		removeListener()
		return nil, err
	}

	if err := s.Entities.RegisterDevice(ctx, &types.HavenDevice{
		ID:           siteID,
		EntryID:      entry.ID,
		Source:       types.SourceSomfy,
		Name:         entry.Title,
		Manufacturer: "Somfy",
		Model:        "Site",
	}); err != nil {
		log.WithError(err).Warn("Failed to register site device")
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

func buildEntity(entryID string, d Device) types.HavenEntity {
	switch d.Type {
	case "cover":
		return buildCover(entryID, d)
	case "thermostat":
		return buildClimate(entryID, d)
	default:
		return nil
	}
}

func buildCover(entryID string, d Device) types.HavenEntity {
	state := types.StateOpen
	switch {
	case d.TargetPosition != nil && d.Position != nil && *d.TargetPosition > *d.Position:
		state = types.StateOpening
	case d.TargetPosition != nil && d.Position != nil && *d.TargetPosition < *d.Position:
		state = types.StateClosing
	case d.Position != nil && *d.Position == 0:
		state = types.StateClosed
	}

	attrs := map[string]interface{}{}
	if d.Battery != nil {
		attrs["battery_level"] = *d.Battery
	}

	return &types.HavenCoverEntity{
		HavenBaseEntity: &types.HavenBaseEntity{
			ID:           "cover.somfy_" + sanitizeID(d.DeviceURL),
			Type:         types.EntityTypeCover,
			FriendlyName: d.Label,
			State:        state,
			Attributes:   attrs,
			LastUpdated:  time.Now(),
			Capabilities: []types.HavenCapability{types.CapabilityPosition},
			Available:    true,
			Metadata: &types.HavenMetadata{
				Source:         types.SourceSomfy,
				SourceEntityID: d.DeviceURL,
				EntryID:        entryID,
			},
		},
		Position:       d.Position,
		TargetPosition: d.TargetPosition,
	}
}

func buildClimate(entryID string, d Device) types.HavenEntity {
	return &types.HavenClimateEntity{
		HavenBaseEntity: &types.HavenBaseEntity{
			ID:           "climate.somfy_" + sanitizeID(d.DeviceURL),
			Type:         types.EntityTypeClimate,
			FriendlyName: d.Label,
			State:        types.StateActive,
			Attributes:   map[string]interface{}{},
			LastUpdated:  time.Now(),
			Capabilities: []types.HavenCapability{types.CapabilityTemperature},
			Available:    true,
			Metadata: &types.HavenMetadata{
				Source:         types.SourceSomfy,
				SourceEntityID: d.DeviceURL,
				EntryID:        entryID,
			},
		},
		CurrentTemperature: d.Temperature,
		TargetTemperature:  d.TargetTemperature,
	}
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, id)
}

// deviceURL recovers the cloud device URL from an action's entity ID
func (a *Adapter) deviceURL(entityID string) (string, error) {
	devices, _ := a.coord.Data().([]Device)
	for _, d := range devices {
		if "cover.somfy_"+sanitizeID(d.DeviceURL) == entityID ||
			"climate.somfy_"+sanitizeID(d.DeviceURL) == entityID {
			return d.DeviceURL, nil
		}
	}
	return "", fmt.Errorf("no device backs entity %s", entityID)
}

// Connect verifies the site answers
func (a *Adapter) Connect(ctx context.Context) error {
	if _, err := a.client.GetDevices(ctx, a.siteID); err != nil {
		return err
	}
	a.SetConnected(true)
	return nil
}

// Disconnect stops polling
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.coord.Shutdown()
	a.SetConnected(false)
	return nil
}

// SyncEntities polls the site and rebuilds the entity set
func (a *Adapter) SyncEntities(ctx context.Context) ([]types.HavenEntity, error) {
	if err := a.coord.Refresh(ctx); err != nil {
		return nil, err
	}
	devices, _ := a.coord.Data().([]Device)
	var out []types.HavenEntity
	for _, d := range devices {
		if e := buildEntity(a.GetID(), d); e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// ExecuteAction posts a command through the authed client
func (a *Adapter) ExecuteAction(ctx context.Context, action types.HavenControlAction) (*types.HavenControlResult, error) {
	deviceURL, err := a.deviceURL(action.EntityID)
	if err != nil {
		a.MarkAction(false)
		return nil, err
	}

	var newState types.HavenEntityState
	switch action.Action {
	case "open":
		err = a.client.ExecCommand(ctx, deviceURL, "open")
		newState = types.StateOpening
	case "close":
		err = a.client.ExecCommand(ctx, deviceURL, "close")
		newState = types.StateClosing
	case "stop":
		err = a.client.ExecCommand(ctx, deviceURL, "stop")
		newState = types.StateOpen
	case "set_position":
		position, ok := actionPosition(action.Parameters)
		if !ok {
			a.MarkAction(false)
			return nil, fmt.Errorf("set_position requires a position parameter")
		}
		err = a.client.ExecCommand(ctx, deviceURL, "position", position)
		if position > 0 {
			newState = types.StateOpening
		} else {
			newState = types.StateClosing
		}
	case "set_temperature":
		target, ok := actionTemperature(action.Parameters)
		if !ok {
			a.MarkAction(false)
			return nil, fmt.Errorf("set_temperature requires a temperature parameter")
		}
		err = a.client.ExecCommand(ctx, deviceURL, "set_target", target)
		newState = types.StateActive
	default:
		a.MarkAction(false)
		return adapters.ErrActionUnsupported(action)
	}

	if err != nil {
		a.MarkAction(false)
		return nil, fmt.Errorf("somfy cloud rejected %s for %s: %w", action.Action, action.EntityID, err)
	}
	a.MarkAction(true)

	if err := a.coord.Refresh(ctx); err != nil {
		a.logger.WithError(err).Debug("Post-command refresh failed")
	}

	return &types.HavenControlResult{
		Success:  true,
		EntityID: action.EntityID,
		Action:   action.Action,
		NewState: newState,
	}, nil
}

func actionPosition(params map[string]interface{}) (int, bool) {
	raw, ok := params["position"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func actionTemperature(params map[string]interface{}) (float64, bool) {
	raw, ok := params["temperature"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func (a *Adapter) GetSupportedEntityTypes() []types.HavenEntityType {
	return []types.HavenEntityType{types.EntityTypeCover, types.EntityTypeClimate}
}

func (a *Adapter) GetSupportedCapabilities() []types.HavenCapability {
	return []types.HavenCapability{types.CapabilityPosition, types.CapabilityTemperature}
}

// SupportsRealtime is false; the cloud is poll-only
func (a *Adapter) SupportsRealtime() bool { return false }
