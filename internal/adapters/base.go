package adapters

import (
	"fmt"
	"sync"
	"time"

	"github.com/haven-automation/haven-hub/internal/core/types"
)

// BaseAdapter carries the bookkeeping every integration adapter shares:
// identity, connection state, sync timestamps and action counters.
// Integrations embed it and implement the domain-specific methods.
type BaseAdapter struct {
	id      string
	source  types.HavenSourceType
	name    string
	version string

	mu          sync.RWMutex
	connected   bool
	lastSync    *time.Time
	syncErrors  int
	actionsOK   int64
	actionsFail int64
	startedAt   time.Time
}

// NewBaseAdapter creates the shared adapter bookkeeping
func NewBaseAdapter(id string, source types.HavenSourceType, name, version string) *BaseAdapter {
	return &BaseAdapter{
		id:        id,
		source:    source,
		name:      name,
		version:   version,
		startedAt: time.Now(),
	}
}

func (b *BaseAdapter) GetID() string                     { return b.id }
func (b *BaseAdapter) GetSourceType() types.HavenSourceType { return b.source }
func (b *BaseAdapter) GetName() string                   { return b.name }
func (b *BaseAdapter) GetVersion() string                { return b.version }

// SetConnected flips the connection flag
func (b *BaseAdapter) SetConnected(connected bool) {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
}

func (b *BaseAdapter) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *BaseAdapter) GetStatus() string {
	if b.IsConnected() {
		return "connected"
	}
	return "disconnected"
}

// MarkSync records a sync outcome
func (b *BaseAdapter) MarkSync(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.lastSync = &now
	if err != nil {
		b.syncErrors++
	}
}

// MarkAction records an action outcome
func (b *BaseAdapter) MarkAction(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.actionsOK++
	} else {
		b.actionsFail++
	}
}

func (b *BaseAdapter) GetLastSyncTime() *time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSync
}

func (b *BaseAdapter) GetHealth() *types.AdapterHealth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	health := &types.AdapterHealth{
		IsHealthy:       b.connected,
		LastHealthCheck: time.Now(),
	}
	if !b.connected {
		health.Issues = append(health.Issues, "not connected")
	}
	total := b.actionsOK + b.actionsFail
	if total > 0 {
		health.ErrorRate = float64(b.actionsFail) / float64(total)
	}
	return health
}

func (b *BaseAdapter) GetMetrics() *types.AdapterMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return &types.AdapterMetrics{
		ActionsExecuted:   b.actionsOK + b.actionsFail,
		SuccessfulActions: b.actionsOK,
		FailedActions:     b.actionsFail,
		LastSync:          b.lastSync,
		SyncErrors:        b.syncErrors,
		Uptime:            time.Since(b.startedAt),
	}
}

// ErrActionUnsupported builds the standard error for actions an adapter
// cannot perform
func ErrActionUnsupported(action types.HavenControlAction) (*types.HavenControlResult, error) {
	return nil, fmt.Errorf("action %q not supported for entity %s", action.Action, action.EntityID)
}
