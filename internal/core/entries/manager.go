package entries

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/core/coordinator"
)

var (
	// ErrEntryNotFound is returned for unknown entry IDs
	ErrEntryNotFound = errors.New("config entry not found")
	// ErrDomainNotRegistered is returned when no integration claimed the domain
	ErrDomainNotRegistered = errors.New("domain not registered")
)

// ReauthFunc starts a reauthentication flow for an entry whose credentials
// stopped working
type ReauthFunc func(ctx context.Context, domain, entryID string)

// StateListener observes entry lifecycle transitions
type StateListener func(entry *ConfigEntry)

// Manager owns config entries and their lifecycles. Integrations register a
// SetupFunc per domain; the manager drives setup, retry, unload, reload and
// removal, persisting every transition.
type Manager struct {
	mu        sync.Mutex
	setups    map[string]SetupFunc
	entries   map[string]*ConfigEntry
	unloaders map[string]UnloadFunc
	retries   map[string]context.CancelFunc
	listeners []StateListener

	store       Store
	logger      *logrus.Logger
	startReauth ReauthFunc

	retryInitial time.Duration
	retryMax     time.Duration
}

// NewManager creates an entry manager backed by the given store
func NewManager(store Store, logger *logrus.Logger) *Manager {
	return &Manager{
		setups:       make(map[string]SetupFunc),
		entries:      make(map[string]*ConfigEntry),
		unloaders:    make(map[string]UnloadFunc),
		retries:      make(map[string]context.CancelFunc),
		store:        store,
		logger:       logger,
		retryInitial: 5 * time.Second,
		retryMax:     5 * time.Minute,
	}
}

// SetReauthFunc wires the callback that opens a reauth flow. Called once at
// startup before any entry is set up.
func (m *Manager) SetReauthFunc(fn ReauthFunc) {
	m.startReauth = fn
}

// AddStateListener registers an observer for entry state transitions
func (m *Manager) AddStateListener(fn StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Register binds an integration domain to its setup function
func (m *Manager) Register(domain string, setup SetupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setups[domain] = setup
}

// HasEntry reports whether an entry of the domain already claimed the
// unique ID. Used for flow deduplication.
func (m *Manager) HasEntry(domain, uniqueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Domain == domain && e.UniqueID != "" && e.UniqueID == uniqueID {
			return true
		}
	}
	return false
}

// Get returns a copy of the entry
func (m *Manager) Get(id string) (*ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e.clone(), nil
}

// List returns copies of all entries
func (m *Manager) List() []*ConfigEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ConfigEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.clone())
	}
	return out
}

// ListByDomain returns copies of all entries for one domain
func (m *Manager) ListByDomain(domain string) []*ConfigEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ConfigEntry, 0)
	for _, e := range m.entries {
		if e.Domain == domain {
			out = append(out, e.clone())
		}
	}
	return out
}

// Create stores a new entry and sets it up immediately. Setup failures do
// not fail creation: the entry lands in setup_error or setup_retry and is
// visible to the operator.
func (m *Manager) Create(ctx context.Context, domain, title, uniqueID string, data map[string]interface{}) (string, error) {
	m.mu.Lock()
	if _, ok := m.setups[domain]; !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDomainNotRegistered, domain)
	}
	now := time.Now()
	entry := &ConfigEntry{
		ID:        uuid.New().String(),
		Domain:    domain,
		Title:     title,
		UniqueID:  uniqueID,
		Data:      data,
		State:     StateNotLoaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.entries[entry.ID] = entry
	m.mu.Unlock()

	if err := m.store.SaveEntry(ctx, entry); err != nil {
		m.mu.Lock()
		delete(m.entries, entry.ID)
		m.mu.Unlock()
		return "", fmt.Errorf("failed to persist entry: %w", err)
	}

	m.Setup(ctx, entry.ID)
	return entry.ID, nil
}

// UpdateData replaces the entry data (reauth handing over fresh
// credentials) and reloads the entry.
func (m *Manager) UpdateData(ctx context.Context, id string, data map[string]interface{}) error {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	entry.Data = data
	entry.UpdatedAt = time.Now()
	snapshot := entry.clone()
	m.mu.Unlock()

	if err := m.store.SaveEntry(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist entry: %w", err)
	}
	return m.Reload(ctx, id)
}

// LoadAll reads persisted entries from the store and sets each one up.
// Called once at startup after all domains registered.
func (m *Manager) LoadAll(ctx context.Context) error {
	stored, err := m.store.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load entries: %w", err)
	}

	m.mu.Lock()
	for _, e := range stored {
		e.State = StateNotLoaded
		m.entries[e.ID] = e
	}
	m.mu.Unlock()

	for _, e := range stored {
		m.Setup(ctx, e.ID)
	}
	return nil
}

// Setup runs the entry's setup function and records the outcome. Not-ready
// errors schedule a background retry with exponential backoff; auth errors
// park the entry in setup_error and open a reauth flow.
func (m *Manager) Setup(ctx context.Context, id string) {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if !ok || entry.State == StateLoaded || entry.State == StateInProgress {
		m.mu.Unlock()
		return
	}
	m.cancelRetryLocked(id)
	m.mu.Unlock()

	err := m.attemptSetup(ctx, id)
	m.handleSetupResult(ctx, id, err)
}

func (m *Manager) attemptSetup(ctx context.Context, id string) error {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	setup, ok := m.setups[entry.Domain]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDomainNotRegistered, entry.Domain)
	}
	entry.State = StateInProgress
	entry.Reason = ""
	snapshot := entry.clone()
	m.mu.Unlock()
	m.notify(snapshot)

	unload, err := setup(ctx, snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if entry, ok := m.entries[id]; ok {
		entry.State = StateLoaded
		entry.Reason = ""
		m.unloaders[id] = unload
		snapshot = entry.clone()
	}
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{"domain": snapshot.Domain, "entry_id": id}).Info("Config entry loaded")
	m.notify(snapshot)
	return nil
}

func (m *Manager) handleSetupResult(ctx context.Context, id string, err error) {
	if err == nil {
		return
	}

	m.mu.Lock()
	entry := m.entries[id]
	m.mu.Unlock()
	if entry == nil {
		return
	}
	log := m.logger.WithFields(logrus.Fields{"domain": entry.Domain, "entry_id": id})

	switch {
	case errors.Is(err, coordinator.ErrAuthFailed):
		m.setState(id, StateSetupError, err.Error())
		log.WithError(err).Warn("Setup failed with authentication error")
		if m.startReauth != nil {
			m.startReauth(ctx, entry.Domain, id)
		}

	case errors.Is(err, coordinator.ErrNotReady):
		m.setState(id, StateSetupRetry, err.Error())
		log.WithError(err).Info("Device or service not ready, scheduling retry")
		m.scheduleRetry(id)

	default:
		m.setState(id, StateSetupError, err.Error())
		log.WithError(err).Error("Setup failed")
	}
}

// scheduleRetry spawns a single goroutine that re-attempts setup with
// exponential backoff until it succeeds or fails terminally. The goroutine
// owns the backoff state so repeated not-ready errors keep growing the
// interval instead of resetting it.
func (m *Manager) scheduleRetry(id string) {
	m.mu.Lock()
	if _, exists := m.retries[id]; exists {
		m.mu.Unlock()
		return
	}
	retryCtx, cancel := context.WithCancel(context.Background())
	m.retries[id] = cancel
	m.mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.retryInitial
	policy.MaxInterval = m.retryMax
	policy.MaxElapsedTime = 0

	go func() {
		// Cancelling an already finished context is harmless; the map
		// slot is reclaimed by the next Setup or Unload.
		defer cancel()

		for {
			select {
			case <-retryCtx.Done():
				return
			case <-time.After(policy.NextBackOff()):
			}

			m.mu.Lock()
			entry, ok := m.entries[id]
			retrying := ok && entry.State == StateSetupRetry
			m.mu.Unlock()
			if !retrying {
				return
			}

			err := m.attemptSetup(retryCtx, id)
			if err == nil {
				return
			}
			if errors.Is(err, coordinator.ErrNotReady) {
				m.setState(id, StateSetupRetry, err.Error())
				continue
			}

			m.handleSetupResult(retryCtx, id, err)
			return
		}
	}()
}

// Unload tears down a loaded entry but keeps it configured
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	m.cancelRetryLocked(id)
	unload := m.unloaders[id]
	delete(m.unloaders, id)
	m.mu.Unlock()

	if unload != nil {
		if err := unload(ctx); err != nil {
			m.setState(id, StateFailedUnload, err.Error())
			return fmt.Errorf("failed to unload entry %s: %w", id, err)
		}
	}

	m.setState(id, StateNotLoaded, "")
	m.logger.WithFields(logrus.Fields{"domain": entry.Domain, "entry_id": id}).Info("Config entry unloaded")
	return nil
}

// Reload unloads and sets the entry up again
func (m *Manager) Reload(ctx context.Context, id string) error {
	if err := m.Unload(ctx, id); err != nil {
		return err
	}
	m.Setup(ctx, id)
	return nil
}

// Remove unloads the entry and deletes it permanently
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.Unload(ctx, id); err != nil && !errors.Is(err, ErrEntryNotFound) {
		return err
	}

	m.mu.Lock()
	entry, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	delete(m.entries, id)
	m.mu.Unlock()

	if err := m.store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	m.logger.WithFields(logrus.Fields{"domain": entry.Domain, "entry_id": id}).Info("Config entry removed")
	return nil
}

// Shutdown unloads all loaded entries and stops pending retries
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Unload(ctx, id); err != nil {
			m.logger.WithError(err).WithField("entry_id", id).Warn("Failed to unload entry during shutdown")
		}
	}
}

func (m *Manager) setState(id string, state EntryState, reason string) {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.State = state
	entry.Reason = reason
	entry.UpdatedAt = time.Now()
	snapshot := entry.clone()
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) notify(entry *ConfigEntry) {
	m.mu.Lock()
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(entry)
	}
}

func (m *Manager) cancelRetryLocked(id string) {
	if cancel, ok := m.retries[id]; ok {
		cancel()
		delete(m.retries, id)
	}
}
