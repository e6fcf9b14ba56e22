package types

import (
	"time"
)

// HavenSourceType identifies which integration produced an entity
type HavenSourceType string

const (
	SourceUptimeRobot HavenSourceType = "uptimerobot"
	SourceAcmeda      HavenSourceType = "acmeda"
	SourceElmax       HavenSourceType = "elmax"
	SourcePlaato      HavenSourceType = "plaato"
	SourceNordpool    HavenSourceType = "nordpool"
	SourceSomfy       HavenSourceType = "somfy"
	SourceHaven       HavenSourceType = "haven"
)

// HavenEntityType represents the platform/domain of an entity
type HavenEntityType string

const (
	EntityTypeSensor       HavenEntityType = "sensor"
	EntityTypeBinarySensor HavenEntityType = "binary_sensor"
	EntityTypeSwitch       HavenEntityType = "switch"
	EntityTypeCover        HavenEntityType = "cover"
	EntityTypeClimate      HavenEntityType = "climate"
	EntityTypeWeather      HavenEntityType = "weather"
)

// HavenEntityState represents the possible states of an entity
type HavenEntityState string

const (
	StateOn          HavenEntityState = "on"
	StateOff         HavenEntityState = "off"
	StateOpen        HavenEntityState = "open"
	StateClosed      HavenEntityState = "closed"
	StateOpening     HavenEntityState = "opening"
	StateClosing     HavenEntityState = "closing"
	StateArmed       HavenEntityState = "armed"
	StateDisarmed    HavenEntityState = "disarmed"
	StateIdle        HavenEntityState = "idle"
	StateActive      HavenEntityState = "active"
	StateUnavailable HavenEntityState = "unavailable"
	StateUnknown     HavenEntityState = "unknown"
)

// HavenCapability represents capabilities that entities can support
type HavenCapability string

const (
	CapabilityPosition     HavenCapability = "position"
	CapabilityTemperature  HavenCapability = "temperature"
	CapabilityHumidity     HavenCapability = "humidity"
	CapabilityBattery      HavenCapability = "battery"
	CapabilityConnectivity HavenCapability = "connectivity"
	CapabilityArmable      HavenCapability = "armable"
	CapabilityPressure     HavenCapability = "pressure"
)

// HavenMetadata contains source-specific metadata and tracking information
type HavenMetadata struct {
	Source         HavenSourceType        `json:"source"`
	SourceEntityID string                 `json:"source_entity_id"`
	EntryID        string                 `json:"entry_id"`
	SourceData     map[string]interface{} `json:"source_data,omitempty"`
	LastSynced     time.Time              `json:"last_synced"`
	SyncErrors     []string               `json:"sync_errors,omitempty"`
}

// HavenContext represents the context of a state change or action
type HavenContext struct {
	ID          string    `json:"id"`
	UserID      *string   `json:"user_id,omitempty"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
}

// HavenError represents errors in the Haven type system
type HavenError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	EntityID  string                 `json:"entity_id"`
	Timestamp time.Time              `json:"timestamp"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HavenControlAction represents control actions that can be performed on entities
type HavenControlAction struct {
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	EntityID   string                 `json:"entity_id"`
	Context    *HavenContext          `json:"context,omitempty"`
}

// HavenControlResult represents the result of a control action
type HavenControlResult struct {
	Success     bool                   `json:"success"`
	EntityID    string                 `json:"entity_id"`
	Action      string                 `json:"action"`
	NewState    HavenEntityState       `json:"new_state,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Error       *HavenError            `json:"error,omitempty"`
	ProcessedAt time.Time              `json:"processed_at"`
	Duration    time.Duration          `json:"duration"`
}

// HavenDevice is a device-registry record grouping entities that belong to one
// physical or logical unit (a hub, a panel, a cloud site).
type HavenDevice struct {
	ID           string          `json:"id"`
	EntryID      string          `json:"entry_id"`
	Source       HavenSourceType `json:"source"`
	Name         string          `json:"name"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Model        string          `json:"model,omitempty"`
	SWVersion    string          `json:"sw_version,omitempty"`
	Identifiers  []string        `json:"identifiers,omitempty"`
	ViaDevice    string          `json:"via_device,omitempty"`
}
