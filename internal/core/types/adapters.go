package types

import (
	"context"
	"time"
)

// HavenAdapter defines the interface that all integration adapters implement.
// One adapter instance serves one config entry.
type HavenAdapter interface {
	// Identification
	GetID() string
	GetSourceType() HavenSourceType
	GetName() string
	GetVersion() string

	// Connection management
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	GetStatus() string

	// Synchronization
	SyncEntities(ctx context.Context) ([]HavenEntity, error)
	GetLastSyncTime() *time.Time

	// Control routing
	ExecuteAction(ctx context.Context, action HavenControlAction) (*HavenControlResult, error)

	// Capabilities
	GetSupportedEntityTypes() []HavenEntityType
	GetSupportedCapabilities() []HavenCapability
	SupportsRealtime() bool

	// Health and monitoring
	GetHealth() *AdapterHealth
	GetMetrics() *AdapterMetrics
}

// AdapterHealth represents the health status of an adapter
type AdapterHealth struct {
	IsHealthy       bool                   `json:"is_healthy"`
	LastHealthCheck time.Time              `json:"last_health_check"`
	Issues          []string               `json:"issues,omitempty"`
	ResponseTime    time.Duration          `json:"response_time"`
	ErrorRate       float64                `json:"error_rate"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

// AdapterMetrics represents performance metrics for an adapter
type AdapterMetrics struct {
	EntitiesManaged     int           `json:"entities_managed"`
	ActionsExecuted     int64         `json:"actions_executed"`
	SuccessfulActions   int64         `json:"successful_actions"`
	FailedActions       int64         `json:"failed_actions"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	LastSync            *time.Time    `json:"last_sync,omitempty"`
	SyncErrors          int           `json:"sync_errors"`
	Uptime              time.Duration `json:"uptime"`
}
