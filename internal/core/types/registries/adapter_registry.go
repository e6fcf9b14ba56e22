package registries

import (
	"fmt"
	"sync"

	"github.com/haven-automation/haven-hub/internal/core/types"
	"github.com/sirupsen/logrus"
)

// Custom errors for adapter registry
var (
	ErrAdapterNotFound          = fmt.Errorf("adapter not found")
	ErrAdapterAlreadyRegistered = fmt.Errorf("adapter already registered")
	ErrInvalidAdapter           = fmt.Errorf("invalid adapter")
)

// AdapterRegistry tracks the adapter instance backing each loaded config
// entry. Entries of the same domain register separate adapter instances.
type AdapterRegistry struct {
	adapters map[string]types.HavenAdapter // adapterID -> adapter
	byEntry  map[string]string             // entryID -> adapterID
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

// NewAdapterRegistry creates a new adapter registry
func NewAdapterRegistry(logger *logrus.Logger) *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[string]types.HavenAdapter),
		byEntry:  make(map[string]string),
		logger:   logger,
	}
}

// RegisterAdapter registers an adapter for a config entry
func (r *AdapterRegistry) RegisterAdapter(entryID string, adapter types.HavenAdapter) error {
	if adapter == nil {
		return ErrInvalidAdapter
	}
	adapterID := adapter.GetID()
	if adapterID == "" {
		return fmt.Errorf("%w: adapter ID cannot be empty", ErrInvalidAdapter)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.adapters[adapterID]; exists {
		return fmt.Errorf("%w: adapter ID '%s'", ErrAdapterAlreadyRegistered, adapterID)
	}

	r.adapters[adapterID] = adapter
	r.byEntry[entryID] = adapterID

	r.logger.WithFields(logrus.Fields{
		"adapter_id": adapterID,
		"entry_id":   entryID,
		"source":     adapter.GetSourceType(),
	}).Debug("Adapter registered")
	return nil
}

// UnregisterAdapter removes an adapter from the registry
func (r *AdapterRegistry) UnregisterAdapter(adapterID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.adapters[adapterID]; !exists {
		return fmt.Errorf("%w: adapter ID '%s'", ErrAdapterNotFound, adapterID)
	}
	delete(r.adapters, adapterID)
	for entryID, id := range r.byEntry {
		if id == adapterID {
			delete(r.byEntry, entryID)
		}
	}

	r.logger.Debugf("Unregistered adapter: %s", adapterID)
	return nil
}

// GetAdapter returns an adapter by its ID
func (r *AdapterRegistry) GetAdapter(adapterID string) (types.HavenAdapter, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	adapter, exists := r.adapters[adapterID]
	if !exists {
		return nil, fmt.Errorf("%w: adapter ID '%s'", ErrAdapterNotFound, adapterID)
	}
	return adapter, nil
}

// GetAdapterByEntry returns the adapter backing a config entry
func (r *AdapterRegistry) GetAdapterByEntry(entryID string) (types.HavenAdapter, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	adapterID, exists := r.byEntry[entryID]
	if !exists {
		return nil, fmt.Errorf("%w: entry ID '%s'", ErrAdapterNotFound, entryID)
	}
	return r.adapters[adapterID], nil
}

// GetAdaptersBySource returns all adapters of one source type
func (r *AdapterRegistry) GetAdaptersBySource(source types.HavenSourceType) []types.HavenAdapter {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []types.HavenAdapter
	for _, adapter := range r.adapters {
		if adapter.GetSourceType() == source {
			result = append(result, adapter)
		}
	}
	return result
}

// GetAllAdapters returns all registered adapters
func (r *AdapterRegistry) GetAllAdapters() []types.HavenAdapter {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	adapters := make([]types.HavenAdapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	return adapters
}

// GetConnectedAdapters returns only adapters that report being connected
func (r *AdapterRegistry) GetConnectedAdapters() []types.HavenAdapter {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var connected []types.HavenAdapter
	for _, adapter := range r.adapters {
		if adapter.IsConnected() {
			connected = append(connected, adapter)
		}
	}
	return connected
}
