package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// How long an unfinished flow survives before being pruned
const flowTTL = 15 * time.Minute

// ErrFlowNotFound is returned for unknown or expired flow IDs
var ErrFlowNotFound = errors.New("flow not found")

// CreateEntryFunc persists a finished flow as a config entry and sets it up.
// Returns the new entry ID.
type CreateEntryFunc func(ctx context.Context, domain, title, uniqueID string, data map[string]interface{}) (string, error)

// UpdateEntryFunc replaces the data of an existing entry (reauth) and
// triggers a reload.
type UpdateEntryFunc func(ctx context.Context, entryID string, data map[string]interface{}) error

// HasEntryFunc reports whether an entry of the domain already claimed the
// unique ID.
type HasEntryFunc func(domain, uniqueID string) bool

// Manager owns every in-progress config flow. Handlers register per domain;
// flows are in-memory only and expire after flowTTL.
type Manager struct {
	mu       sync.Mutex
	handlers map[string]Handler
	flows    map[string]*Flow
	logger   *logrus.Logger

	createEntry CreateEntryFunc
	updateEntry UpdateEntryFunc
	hasEntry    HasEntryFunc
}

// NewManager creates a flow manager
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		handlers: make(map[string]Handler),
		flows:    make(map[string]*Flow),
		logger:   logger,
	}
}

// Wire connects the manager to the config-entry layer. Called once at
// startup, before any flow is initialized.
func (m *Manager) Wire(create CreateEntryFunc, update UpdateEntryFunc, has HasEntryFunc) {
	m.createEntry = create
	m.updateEntry = update
	m.hasEntry = has
}

// RegisterHandler registers an integration's flow handler
func (m *Manager) RegisterHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[h.Domain()] = h
}

// Domains returns every domain with a registered flow handler
func (m *Manager) Domains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	domains := make([]string, 0, len(m.handlers))
	for domain := range m.handlers {
		domains = append(domains, domain)
	}
	return domains
}

// Init starts a new flow for a domain and executes its first step with no
// input (normally producing a form).
func (m *Manager) Init(ctx context.Context, domain, kind, reauthEntryID string) (*Result, error) {
	m.mu.Lock()
	m.pruneExpiredLocked()
	handler, ok := m.handlers[domain]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("no flow handler for domain %q", domain)
	}
	if kind == "" {
		kind = KindUser
	}
	if _, ok := handler.Steps()[kind]; !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: domain %q has no %q step", ErrUnknownStep, domain, kind)
	}

	f := &Flow{
		ID:            uuid.New().String(),
		Domain:        domain,
		Kind:          kind,
		CurrentStep:   kind,
		ReauthEntryID: reauthEntryID,
		Context:       make(map[string]interface{}),
		CreatedAt:     time.Now(),
		manager:       m,
	}
	m.flows[f.ID] = f
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"flow_id": f.ID,
		"domain":  domain,
		"kind":    kind,
	}).Info("Config flow started")

	return m.runStep(ctx, f, f.CurrentStep, nil)
}

// Configure advances a flow with user input
func (m *Manager) Configure(ctx context.Context, flowID string, input map[string]interface{}) (*Result, error) {
	m.mu.Lock()
	m.pruneExpiredLocked()
	f, ok := m.flows[flowID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}

	return m.runStep(ctx, f, f.CurrentStep, input)
}

// AbortFlow discards an in-progress flow
func (m *Manager) AbortFlow(flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.flows[flowID]; !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	delete(m.flows, flowID)
	return nil
}

// InProgress lists all active flows
func (m *Manager) InProgress() []*Flow {
	m.mu.Lock()
	defer m.mu.Unlock()

	flows := make([]*Flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	return flows
}

func (m *Manager) runStep(ctx context.Context, f *Flow, stepID string, input map[string]interface{}) (*Result, error) {
	m.mu.Lock()
	handler := m.handlers[f.Domain]
	m.mu.Unlock()

	step, ok := handler.Steps()[stepID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownStep, f.Domain, stepID)
	}

	result, err := step(ctx, f, input)
	if err != nil {
		if errors.Is(err, ErrAlreadyConfigured) {
			result = f.Abort(AbortAlreadyConfigured)
		} else {
			return nil, err
		}
	}

	switch result.Type {
	case ResultTypeForm:
		f.CurrentStep = result.StepID
		return result, nil

	case ResultTypeCreateEntry:
		return m.finalize(ctx, f, result)

	case ResultTypeAbort:
		m.removeFlow(f.ID)
		m.logger.WithFields(logrus.Fields{
			"flow_id": f.ID,
			"domain":  f.Domain,
			"reason":  result.Reason,
		}).Info("Config flow aborted")
		return result, nil

	default:
		return nil, fmt.Errorf("handler for %q returned unknown result type %q", f.Domain, result.Type)
	}
}

func (m *Manager) finalize(ctx context.Context, f *Flow, result *Result) (*Result, error) {
	defer m.removeFlow(f.ID)

	// Reauth flows replace the credentials of the entry they target and
	// report success via abort, matching the wizard semantics: nothing new
	// was created.
	if f.Kind == KindReauth && f.ReauthEntryID != "" {
		if err := m.updateEntry(ctx, f.ReauthEntryID, result.Data); err != nil {
			return nil, fmt.Errorf("failed to update entry %s: %w", f.ReauthEntryID, err)
		}
		m.logger.WithFields(logrus.Fields{
			"flow_id":  f.ID,
			"domain":   f.Domain,
			"entry_id": f.ReauthEntryID,
		}).Info("Reauthentication completed")
		abort := f.Abort(AbortReauthSuccessful)
		abort.EntryID = f.ReauthEntryID
		return abort, nil
	}

	entryID, err := m.createEntry(ctx, f.Domain, result.Title, f.UniqueID, result.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry for %q: %w", f.Domain, err)
	}
	result.EntryID = entryID

	m.logger.WithFields(logrus.Fields{
		"flow_id":  f.ID,
		"domain":   f.Domain,
		"entry_id": entryID,
		"title":    result.Title,
	}).Info("Config entry created")
	return result, nil
}

func (m *Manager) removeFlow(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowID)
}

func (m *Manager) pruneExpiredLocked() {
	cutoff := time.Now().Add(-flowTTL)
	for id, f := range m.flows {
		if f.CreatedAt.Before(cutoff) {
			delete(m.flows, id)
		}
	}
}
