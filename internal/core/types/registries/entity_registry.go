package registries

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haven-automation/haven-hub/internal/core/types"
	"github.com/sirupsen/logrus"
)

// Custom errors for entity registry
var (
	ErrEntityNotFound          = fmt.Errorf("entity not found")
	ErrEntityAlreadyRegistered = fmt.Errorf("entity already registered")
	ErrInvalidEntity           = fmt.Errorf("invalid entity")
)

// EntityRegistry holds the live view of every entity across all config
// entries. Snapshots are replaced wholesale on every coordinator refresh;
// the registry only indexes them.
type EntityRegistry struct {
	entities         map[string]types.HavenEntity       // entityID -> entity
	entitiesByType   map[types.HavenEntityType][]string // entityType -> []entityID
	entitiesBySource map[types.HavenSourceType][]string // sourceType -> []entityID
	entitiesByEntry  map[string][]string                // entryID -> []entityID
	lastSeen         map[string]time.Time               // entityID -> last write time
	mutex            sync.RWMutex
	logger           *logrus.Logger
}

// NewEntityRegistry creates a new entity registry
func NewEntityRegistry(logger *logrus.Logger) *EntityRegistry {
	return &EntityRegistry{
		entities:         make(map[string]types.HavenEntity),
		entitiesByType:   make(map[types.HavenEntityType][]string),
		entitiesBySource: make(map[types.HavenSourceType][]string),
		entitiesByEntry:  make(map[string][]string),
		lastSeen:         make(map[string]time.Time),
		logger:           logger,
	}
}

// RegisterEntity registers a new entity, or updates it in place when the same
// source re-reports a known ID.
func (r *EntityRegistry) RegisterEntity(entity types.HavenEntity) error {
	if entity == nil {
		return ErrInvalidEntity
	}

	entityID := entity.GetID()
	if entityID == "" {
		return fmt.Errorf("%w: entity ID cannot be empty", ErrInvalidEntity)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, exists := r.entities[entityID]; exists {
		if existing.GetSource() == entity.GetSource() {
			return r.updateEntityInternal(entity)
		}
		return fmt.Errorf("%w: entity ID '%s'", ErrEntityAlreadyRegistered, entityID)
	}

	r.entities[entityID] = entity
	r.lastSeen[entityID] = time.Now()

	entityType := entity.GetType()
	r.entitiesByType[entityType] = append(r.entitiesByType[entityType], entityID)

	sourceType := entity.GetSource()
	r.entitiesBySource[sourceType] = append(r.entitiesBySource[sourceType], entityID)

	if entryID := entity.GetEntryID(); entryID != "" {
		r.entitiesByEntry[entryID] = append(r.entitiesByEntry[entryID], entityID)
	}

	r.logger.WithField("entity_id", entityID).Debug("Entity registered")
	return nil
}

// UnregisterEntity removes an entity from the registry
func (r *EntityRegistry) UnregisterEntity(entityID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.unregisterEntityInternal(entityID)
}

func (r *EntityRegistry) unregisterEntityInternal(entityID string) error {
	entity, exists := r.entities[entityID]
	if !exists {
		return fmt.Errorf("%w: entity ID '%s'", ErrEntityNotFound, entityID)
	}

	delete(r.entities, entityID)
	delete(r.lastSeen, entityID)

	entityType := entity.GetType()
	r.entitiesByType[entityType] = removeFromSlice(r.entitiesByType[entityType], entityID)
	if len(r.entitiesByType[entityType]) == 0 {
		delete(r.entitiesByType, entityType)
	}

	sourceType := entity.GetSource()
	r.entitiesBySource[sourceType] = removeFromSlice(r.entitiesBySource[sourceType], entityID)
	if len(r.entitiesBySource[sourceType]) == 0 {
		delete(r.entitiesBySource, sourceType)
	}

	if entryID := entity.GetEntryID(); entryID != "" {
		r.entitiesByEntry[entryID] = removeFromSlice(r.entitiesByEntry[entryID], entityID)
		if len(r.entitiesByEntry[entryID]) == 0 {
			delete(r.entitiesByEntry, entryID)
		}
	}

	r.logger.Debugf("Unregistered entity: %s", entityID)
	return nil
}

// GetEntity retrieves an entity by its ID
func (r *EntityRegistry) GetEntity(entityID string) (types.HavenEntity, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entity, exists := r.entities[entityID]
	if !exists {
		return nil, fmt.Errorf("%w: entity ID '%s'", ErrEntityNotFound, entityID)
	}
	return entity, nil
}

// GetEntitiesByType retrieves all entities of a specific type
func (r *EntityRegistry) GetEntitiesByType(entityType types.HavenEntityType) []types.HavenEntity {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.collect(r.entitiesByType[entityType])
}

// GetEntitiesBySource retrieves all entities from a specific source
func (r *EntityRegistry) GetEntitiesBySource(source types.HavenSourceType) []types.HavenEntity {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.collect(r.entitiesBySource[source])
}

// GetEntitiesByEntry retrieves all entities belonging to a config entry
func (r *EntityRegistry) GetEntitiesByEntry(entryID string) []types.HavenEntity {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.collect(r.entitiesByEntry[entryID])
}

// GetAllEntities retrieves all registered entities
func (r *EntityRegistry) GetAllEntities() []types.HavenEntity {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entities := make([]types.HavenEntity, 0, len(r.entities))
	for _, entity := range r.entities {
		entities = append(entities, entity)
	}
	return entities
}

// UpdateEntity updates an existing entity in the registry
func (r *EntityRegistry) UpdateEntity(entity types.HavenEntity) error {
	if entity == nil {
		return ErrInvalidEntity
	}
	if entity.GetID() == "" {
		return fmt.Errorf("%w: entity ID cannot be empty", ErrInvalidEntity)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.updateEntityInternal(entity)
}

func (r *EntityRegistry) updateEntityInternal(entity types.HavenEntity) error {
	entityID := entity.GetID()
	if _, exists := r.entities[entityID]; !exists {
		return fmt.Errorf("%w: entity ID '%s'", ErrEntityNotFound, entityID)
	}

	r.entities[entityID] = entity
	r.lastSeen[entityID] = time.Now()
	return nil
}

// MarkEntryUnavailable flips every entity of a config entry to unavailable.
// Called when the entry's coordinator reports a failed refresh so dependent
// entities all go stale together.
func (r *EntityRegistry) MarkEntryUnavailable(entryID string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	count := 0
	for _, entityID := range r.entitiesByEntry[entryID] {
		if entity, exists := r.entities[entityID]; exists && entity.IsAvailable() {
			entity.SetAvailable(false)
			count++
		}
	}

	if count > 0 {
		r.logger.WithFields(logrus.Fields{
			"entry_id": entryID,
			"entities": count,
		}).Debug("Marked entry entities unavailable")
	}
	return count
}

// RemoveEntryEntities removes every entity belonging to a config entry and
// returns the removed IDs.
func (r *EntityRegistry) RemoveEntryEntities(entryID string) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ids := append([]string(nil), r.entitiesByEntry[entryID]...)
	for _, entityID := range ids {
		if err := r.unregisterEntityInternal(entityID); err != nil {
			r.logger.WithError(err).Warnf("Failed to unregister entity %s", entityID)
		}
	}
	return ids
}

// SearchEntities searches for entities by name or ID
func (r *EntityRegistry) SearchEntities(query string) []types.HavenEntity {
	if query == "" {
		return r.GetAllEntities()
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	query = strings.ToLower(query)
	var matching []types.HavenEntity
	for _, entity := range r.entities {
		if strings.Contains(strings.ToLower(entity.GetID()), query) ||
			strings.Contains(strings.ToLower(entity.GetFriendlyName()), query) {
			matching = append(matching, entity)
		}
	}
	return matching
}

// GetEntityCount returns the total number of registered entities
func (r *EntityRegistry) GetEntityCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.entities)
}

// GetEntityCountBySource returns the count of entities grouped by source
func (r *EntityRegistry) GetEntityCountBySource() map[types.HavenSourceType]int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	counts := make(map[types.HavenSourceType]int)
	for sourceType, entityIDs := range r.entitiesBySource {
		counts[sourceType] = len(entityIDs)
	}
	return counts
}

func (r *EntityRegistry) collect(entityIDs []string) []types.HavenEntity {
	entities := make([]types.HavenEntity, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		if entity, exists := r.entities[entityID]; exists {
			entities = append(entities, entity)
		}
	}
	return entities
}

// Helper function to remove a string from a slice
func removeFromSlice(slice []string, item string) []string {
	for i, v := range slice {
		if v == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
