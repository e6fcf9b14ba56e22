package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/core/metrics"
	"github.com/haven-automation/haven-hub/internal/core/types"
	"github.com/haven-automation/haven-hub/internal/core/types/registries"
	"github.com/haven-automation/haven-hub/internal/database/models"
	"github.com/haven-automation/haven-hub/internal/database/repositories"
)

// StateListener observes entity state changes. The websocket hub, the MQTT
// bridge and the history recorder all hang off this.
type StateListener interface {
	OnEntityState(entity types.HavenEntity)
	OnEntityRemoved(entityID string)
}

// Service is the single write path for entity state. Adapters push
// snapshots in, the service updates the registry, persists the snapshot and
// fans the change out to listeners.
type Service struct {
	registry   *registries.EntityRegistry
	adapterReg *registries.AdapterRegistry
	repo       repositories.EntityRepository
	deviceRepo repositories.DeviceRepository
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	mu        sync.Mutex
	listeners []StateListener
	devices   map[string]*types.HavenDevice
}

// NewService creates an entity service
func NewService(registry *registries.EntityRegistry, adapterReg *registries.AdapterRegistry, repo repositories.EntityRepository, deviceRepo repositories.DeviceRepository, m *metrics.Metrics, logger *logrus.Logger) *Service {
	return &Service{
		registry:   registry,
		adapterReg: adapterReg,
		repo:       repo,
		deviceRepo: deviceRepo,
		metrics:    m,
		logger:     logger,
		devices:    make(map[string]*types.HavenDevice),
	}
}

// AddListener registers a state listener
func (s *Service) AddListener(l StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Upsert registers or updates an entity, persists the snapshot and
// notifies listeners
func (s *Service) Upsert(ctx context.Context, entity types.HavenEntity) error {
	if err := s.registry.RegisterEntity(entity); err != nil {
		return fmt.Errorf("failed to register entity %s: %w", entity.GetID(), err)
	}

	if err := s.persist(ctx, entity); err != nil {
		s.logger.WithError(err).WithField("entity_id", entity.GetID()).Warn("Failed to persist entity snapshot")
	}

	s.updateGauges()
	s.notifyState(entity)
	return nil
}

// Restore loads the persisted entity and device snapshots back into the
// registry at startup. Restored entities keep their last known state but
// report unavailable until their entry's first refresh confirms them.
func (s *Service) Restore(ctx context.Context) error {
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load entity snapshots: %w", err)
	}
	for _, row := range rows {
		entity := entityFromRow(row)
		if err := s.registry.RegisterEntity(entity); err != nil {
			s.logger.WithError(err).WithField("entity_id", row.ID).Warn("Failed to restore entity")
			continue
		}
		s.notifyState(entity)
	}

	deviceRows, err := s.deviceRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device records: %w", err)
	}
	s.mu.Lock()
	for _, row := range deviceRows {
		s.devices[row.ID] = &types.HavenDevice{
			ID:           row.ID,
			EntryID:      row.EntryID,
			Source:       types.HavenSourceType(row.Source),
			Name:         row.Name,
			Manufacturer: row.Manufacturer,
			Model:        row.Model,
			SWVersion:    row.SWVersion,
		}
	}
	s.mu.Unlock()

	s.updateGauges()
	s.logger.WithFields(logrus.Fields{
		"entities": len(rows),
		"devices":  len(deviceRows),
	}).Info("Restored registry from store")
	return nil
}

// RegisterDevice records the device an entry's entities belong to
func (s *Service) RegisterDevice(ctx context.Context, device *types.HavenDevice) error {
	row := &models.DeviceRow{
		ID:           device.ID,
		EntryID:      device.EntryID,
		Source:       string(device.Source),
		Name:         device.Name,
		Manufacturer: device.Manufacturer,
		Model:        device.Model,
		SWVersion:    device.SWVersion,
		CreatedAt:    time.Now(),
	}
	if err := s.deviceRepo.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to persist device %s: %w", device.ID, err)
	}

	s.mu.Lock()
	s.devices[device.ID] = device
	s.mu.Unlock()
	return nil
}

// ListDevices returns the registered devices sorted by name
func (s *Service) ListDevices() []*types.HavenDevice {
	s.mu.Lock()
	out := make([]*types.HavenDevice, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns one entity
func (s *Service) Get(id string) (types.HavenEntity, error) {
	return s.registry.GetEntity(id)
}

// List returns all entities
func (s *Service) List() []types.HavenEntity {
	return s.registry.GetAllEntities()
}

// ListBySource returns all entities from one source
func (s *Service) ListBySource(source types.HavenSourceType) []types.HavenEntity {
	return s.registry.GetEntitiesBySource(source)
}

// ListByEntry returns all entities belonging to a config entry
func (s *Service) ListByEntry(entryID string) []types.HavenEntity {
	return s.registry.GetEntitiesByEntry(entryID)
}

// ListByType returns all entities of one type
func (s *Service) ListByType(entityType types.HavenEntityType) []types.HavenEntity {
	return s.registry.GetEntitiesByType(entityType)
}

// Search returns entities matching the query by ID or friendly name
func (s *Service) Search(query string) []types.HavenEntity {
	return s.registry.SearchEntities(query)
}

// Count returns the number of registered entities
func (s *Service) Count() int {
	return s.registry.GetEntityCount()
}

// CountBySource returns per-source entity counts
func (s *Service) CountBySource() map[types.HavenSourceType]int {
	return s.registry.GetEntityCountBySource()
}

// ExecuteAction routes a control action to the adapter owning the entity
func (s *Service) ExecuteAction(ctx context.Context, action types.HavenControlAction) (*types.HavenControlResult, error) {
	start := time.Now()

	entity, err := s.registry.GetEntity(action.EntityID)
	if err != nil {
		return nil, err
	}

	adapter, err := s.adapterReg.GetAdapterByEntry(entity.GetEntryID())
	if err != nil {
		return nil, fmt.Errorf("no adapter for entity %s: %w", action.EntityID, err)
	}

	result, err := adapter.ExecuteAction(ctx, action)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	result.ProcessedAt = time.Now()

	// Control results carry the commanded state; push it through the
	// normal update path so clients see it before the next poll confirms.
	if result.Success && result.NewState != "" {
		if base, ok := entity.(interface{ SetState(types.HavenEntityState) }); ok {
			base.SetState(result.NewState)
			if err := s.Upsert(ctx, entity); err != nil {
				s.logger.WithError(err).Warn("Failed to apply optimistic state")
			}
		}
	}
	return result, nil
}

// MarkEntryUnavailable flags every entity of an entry unavailable and
// notifies listeners. Called when the entry's coordinator fails.
func (s *Service) MarkEntryUnavailable(entryID string) int {
	n := s.registry.MarkEntryUnavailable(entryID)
	for _, entity := range s.registry.GetEntitiesByEntry(entryID) {
		s.notifyState(entity)
	}
	return n
}

// RemoveEntry drops every entity of a config entry from the registry and
// the store
func (s *Service) RemoveEntry(ctx context.Context, entryID string) error {
	removed := s.registry.RemoveEntryEntities(entryID)
	if err := s.repo.DeleteByEntry(ctx, entryID); err != nil {
		return err
	}
	if err := s.deviceRepo.DeleteByEntry(ctx, entryID); err != nil {
		s.logger.WithError(err).WithField("entry_id", entryID).Warn("Failed to delete device records")
	}

	s.mu.Lock()
	for id, d := range s.devices {
		if d.EntryID == entryID {
			delete(s.devices, id)
		}
	}
	listeners := make([]StateListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.updateGauges()
	for _, id := range removed {
		for _, l := range listeners {
			l.OnEntityRemoved(id)
		}
	}
	return nil
}

func (s *Service) persist(ctx context.Context, entity types.HavenEntity) error {
	attrs, err := json.Marshal(entity.GetAttributes())
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	row := &models.EntityRow{
		ID:           entity.GetID(),
		EntryID:      entity.GetEntryID(),
		EntityType:   string(entity.GetType()),
		FriendlyName: entity.GetFriendlyName(),
		State:        string(entity.GetState()),
		Attributes:   string(attrs),
		Source:       string(entity.GetSource()),
		LastUpdated:  entity.GetLastUpdated(),
	}
	if deviceID := entity.GetDeviceID(); deviceID != nil {
		row.DeviceID = deviceID
	}
	return s.repo.Upsert(ctx, row)
}

// entityFromRow rebuilds a registry entity from its persisted snapshot
func entityFromRow(row *models.EntityRow) types.HavenEntity {
	attrs := make(map[string]interface{})
	if row.Attributes != "" {
		json.Unmarshal([]byte(row.Attributes), &attrs)
	}
	return &types.HavenBaseEntity{
		ID:           row.ID,
		Type:         types.HavenEntityType(row.EntityType),
		FriendlyName: row.FriendlyName,
		State:        types.HavenEntityState(row.State),
		Attributes:   attrs,
		LastUpdated:  row.LastUpdated,
		DeviceID:     row.DeviceID,
		Available:    false,
		Metadata: &types.HavenMetadata{
			Source:  types.HavenSourceType(row.Source),
			EntryID: row.EntryID,
		},
	}
}

func (s *Service) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.EntitiesBySource.Reset()
	for source, count := range s.registry.GetEntityCountBySource() {
		s.metrics.EntitiesBySource.WithLabelValues(string(source)).Set(float64(count))
	}
}

func (s *Service) notifyState(entity types.HavenEntity) {
	s.mu.Lock()
	listeners := make([]StateListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnEntityState(entity)
	}
}
