package acmeda

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
	domain       = "acmeda"
	pollInterval = 30 * time.Second
)

// Adapter exposes the rollers paired with one Pulse hub as cover entities.
// Every cover shares the hub's coordinator, so concurrent refresh requests
// collapse into a single hub poll.
type Adapter struct {
	*adapters.BaseAdapter
	client *Client
	coord  *coordinator.Coordinator
	logger *logrus.Entry
}

// Register wires the acmeda domain into the hub
func Register(s *adapters.Services) {
	s.Flows.RegisterHandler(&flowHandler{})
	s.Entries.Register(domain, func(ctx context.Context, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
		return setupEntry(ctx, s, entry)
	})
}

func setupEntry(ctx context.Context, s *adapters.Services, entry *entries.ConfigEntry) (entries.UnloadFunc, error) {
	host := entry.GetString("host")
	client := newClient(host)
	log := s.Logger.WithFields(logrus.Fields{"domain": domain, "entry_id": entry.ID})

	adapter := &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(entry.ID, types.SourceAcmeda, "Acmeda Pulse Hub", "1.0"),
		client:      client,
		logger:      log,
	}

	coord := coordinator.New(coordinator.Options{
		Name:     "acmeda rollers",
		Domain:   domain,
		EntryID:  entry.ID,
		Interval: pollInterval,
		Timeout:  15 * time.Second,
		Logger:   s.Logger,
		Observer: s.Metrics,
		Update: func(ctx context.Context) (interface{}, error) {
			rollers, err := client.GetRollers(ctx)
			adapter.MarkSync(err)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", coordinator.ErrUpdateFailed, err)
			}
			return rollers, nil
		},
	})
	adapter.coord = coord

	removeListener := coord.AddListener(func() {
		if !coord.LastUpdateSuccess() {
			s.Entities.MarkEntryUnavailable(entry.ID)
			return
		}
		rollers, ok := coord.Data().([]Roller)
		if !ok {
			return
		}
		for _, r := range rollers {
			if err := s.Entities.Upsert(context.Background(), buildCover(entry.ID, r)); err != nil {
				log.WithError(err).Warn("Failed to upsert roller entity")
			}
		}
	})

	// An unreachable hub is a transient condition; the entry manager keeps
	// retrying setup with backoff until the hub answers.
	if err := coord.Refresh(ctx); err != nil {
		removeListener()
		return nil, fmt.Errorf("%w: hub at %s: %v", coordinator.ErrNotReady, host, err)
	}

	if info, err := client.GetHubInfo(ctx); err != nil {
		log.WithError(err).Warn("Failed to read hub identity for the device registry")
	} else if err := s.Entities.RegisterDevice(ctx, &types.HavenDevice{
		ID:           info.ID,
		EntryID:      entry.ID,
		Source:       types.SourceAcmeda,
		Name:         info.Name,
		Manufacturer: "Acmeda",
		Model:        "Pulse Hub",
		SWVersion:    info.Firmware,
	}); err != nil {
		log.WithError(err).Warn("Failed to register hub device")
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

func buildCover(entryID string, r Roller) types.HavenEntity {
	position := r.Position

	state := types.StateOpen
	switch {
	case r.Target != nil && *r.Target > position:
		state = types.StateOpening
	case r.Target != nil && *r.Target < position:
		state = types.StateClosing
	case position == 0:
		state = types.StateClosed
	}

	attrs := map[string]interface{}{
		"signal_strength": r.Signal,
	}
	if r.Battery != nil {
		attrs["battery_level"] = *r.Battery
	}

	capabilities := []types.HavenCapability{types.CapabilityPosition}
	if r.Battery != nil {
		capabilities = append(capabilities, types.CapabilityBattery)
	}

	return &types.HavenCoverEntity{
		HavenBaseEntity: &types.HavenBaseEntity{
			ID:           "cover.acmeda_" + sanitizeID(r.ID),
			Type:         types.EntityTypeCover,
			FriendlyName: r.Name,
			State:        state,
			Attributes:   attrs,
			LastUpdated:  time.Now(),
			Capabilities: capabilities,
			Available:    true,
			Metadata: &types.HavenMetadata{
				Source:         types.SourceAcmeda,
				SourceEntityID: r.ID,
				EntryID:        entryID,
			},
		},
		Position:       &position,
		TargetPosition: r.Target,
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

// rollerID recovers the hub-side roller ID from an action's entity ID
func (a *Adapter) rollerID(entityID string) (string, error) {
	rollers, _ := a.coord.Data().([]Roller)
	for _, r := range rollers {
		if "cover.acmeda_"+sanitizeID(r.ID) == entityID {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("no roller backs entity %s", entityID)
}

// Connect verifies the hub answers
func (a *Adapter) Connect(ctx context.Context) error {
	if _, err := a.client.GetHubInfo(ctx); err != nil {
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

// SyncEntities polls the hub and rebuilds the cover set
func (a *Adapter) SyncEntities(ctx context.Context) ([]types.HavenEntity, error) {
	if err := a.coord.Refresh(ctx); err != nil {
		return nil, err
	}
	rollers, _ := a.coord.Data().([]Roller)
	out := make([]types.HavenEntity, 0, len(rollers))
	for _, r := range rollers {
		out = append(out, buildCover(a.GetID(), r))
	}
	return out, nil
}

// ExecuteAction drives a roller. The follow-up refresh is deduplicated by
// the coordinator, so commands against several covers at once still produce
// a single hub poll.
func (a *Adapter) ExecuteAction(ctx context.Context, action types.HavenControlAction) (*types.HavenControlResult, error) {
	rollerID, err := a.rollerID(action.EntityID)
	if err != nil {
		a.MarkAction(false)
		return nil, err
	}

	var newState types.HavenEntityState
	switch action.Action {
	case "open":
		err = a.client.MoveTo(ctx, rollerID, 100)
		newState = types.StateOpening
	case "close":
		err = a.client.MoveTo(ctx, rollerID, 0)
		newState = types.StateClosing
	case "stop":
		err = a.client.Stop(ctx, rollerID)
		newState = types.StateOpen
	case "set_position":
		position, ok := actionPosition(action.Parameters)
		if !ok {
			a.MarkAction(false)
			return nil, fmt.Errorf("set_position requires a position parameter")
		}
		err = a.client.MoveTo(ctx, rollerID, position)
		if position > 0 {
			newState = types.StateOpening
		} else {
			newState = types.StateClosing
		}
	default:
		a.MarkAction(false)
		return adapters.ErrActionUnsupported(action)
	}

	if err != nil {
		a.MarkAction(false)
		return nil, fmt.Errorf("hub rejected %s for %s: %w", action.Action, action.EntityID, err)
	}
	a.MarkAction(true)

	// Pick up the new target so the moving state reaches entities promptly
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

func (a *Adapter) GetSupportedEntityTypes() []types.HavenEntityType {
	return []types.HavenEntityType{types.EntityTypeCover}
}

func (a *Adapter) GetSupportedCapabilities() []types.HavenCapability {
	return []types.HavenCapability{types.CapabilityPosition, types.CapabilityBattery}
}

// SupportsRealtime is false; roller state arrives by polling the hub
func (a *Adapter) SupportsRealtime() bool { return false }
