package types

import (
	"encoding/json"
	"time"
)

// HavenEntity is the base interface that all Haven entities must implement
type HavenEntity interface {
	// Basic identification
	GetID() string
	GetType() HavenEntityType
	GetFriendlyName() string
	GetIcon() string

	// State management
	GetState() HavenEntityState
	GetAttributes() map[string]interface{}
	GetLastUpdated() time.Time

	// Capabilities
	GetCapabilities() []HavenCapability
	HasCapability(capability HavenCapability) bool

	// Relationships
	GetEntryID() string
	GetDeviceID() *string

	// Source tracking
	GetMetadata() *HavenMetadata
	GetSource() HavenSourceType

	// Availability
	IsAvailable() bool
	SetAvailable(available bool)

	// Serialization
	ToJSON() ([]byte, error)
}

// HavenBaseEntity provides a base implementation of HavenEntity
type HavenBaseEntity struct {
	ID           string                 `json:"id"`
	Type         HavenEntityType        `json:"type"`
	FriendlyName string                 `json:"friendly_name"`
	Icon         string                 `json:"icon,omitempty"`
	State        HavenEntityState       `json:"state"`
	Attributes   map[string]interface{} `json:"attributes"`
	LastUpdated  time.Time              `json:"last_updated"`
	Capabilities []HavenCapability      `json:"capabilities,omitempty"`
	DeviceID     *string                `json:"device_id,omitempty"`
	Metadata     *HavenMetadata         `json:"metadata"`
	Available    bool                   `json:"available"`
}

// Implement HavenEntity interface for HavenBaseEntity
func (e *HavenBaseEntity) GetID() string                         { return e.ID }
func (e *HavenBaseEntity) GetType() HavenEntityType              { return e.Type }
func (e *HavenBaseEntity) GetFriendlyName() string               { return e.FriendlyName }
func (e *HavenBaseEntity) GetIcon() string                       { return e.Icon }
func (e *HavenBaseEntity) GetState() HavenEntityState            { return e.State }
func (e *HavenBaseEntity) GetAttributes() map[string]interface{} { return e.Attributes }
func (e *HavenBaseEntity) GetLastUpdated() time.Time             { return e.LastUpdated }
func (e *HavenBaseEntity) GetCapabilities() []HavenCapability    { return e.Capabilities }
func (e *HavenBaseEntity) GetDeviceID() *string                  { return e.DeviceID }
func (e *HavenBaseEntity) GetMetadata() *HavenMetadata           { return e.Metadata }
func (e *HavenBaseEntity) IsAvailable() bool                     { return e.Available }
func (e *HavenBaseEntity) SetAvailable(available bool)           { e.Available = available }

// SetState applies a new state and stamps the update time
func (e *HavenBaseEntity) SetState(state HavenEntityState) {
	e.State = state
	e.LastUpdated = time.Now()
}

func (e *HavenBaseEntity) GetEntryID() string {
	if e.Metadata != nil {
		return e.Metadata.EntryID
	}
	return ""
}

func (e *HavenBaseEntity) GetSource() HavenSourceType {
	if e.Metadata != nil {
		return e.Metadata.Source
	}
	return SourceHaven
}

func (e *HavenBaseEntity) HasCapability(capability HavenCapability) bool {
	for _, c := range e.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func (e *HavenBaseEntity) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// HavenSensorEntity is a read-only measurement entity
type HavenSensorEntity struct {
	*HavenBaseEntity
	Unit            string    `json:"unit,omitempty"`
	DeviceClass     string    `json:"device_class,omitempty"`
	NumericValue    *float64  `json:"numeric_value,omitempty"`
	StringValue     string    `json:"string_value,omitempty"`
	LastMeasurement time.Time `json:"last_measurement"`
}

func (s *HavenSensorEntity) GetUnit() string               { return s.Unit }
func (s *HavenSensorEntity) GetDeviceClass() string        { return s.DeviceClass }
func (s *HavenSensorEntity) GetNumericValue() *float64     { return s.NumericValue }
func (s *HavenSensorEntity) GetStringValue() string        { return s.StringValue }
func (s *HavenSensorEntity) GetLastMeasurement() time.Time { return s.LastMeasurement }

// HavenBinarySensorEntity reports an on/off condition (up/down, open/closed,
// motion/clear) with an optional device class describing the condition.
type HavenBinarySensorEntity struct {
	*HavenBaseEntity
	DeviceClass string `json:"device_class,omitempty"`
}

func (b *HavenBinarySensorEntity) GetDeviceClass() string { return b.DeviceClass }
func (b *HavenBinarySensorEntity) IsOn() bool             { return b.State == StateOn }

// HavenSwitchEntity is a controllable on/off entity
type HavenSwitchEntity struct {
	*HavenBaseEntity
}

// HavenCoverEntity is a positional cover (roller blind, shutter, awning)
type HavenCoverEntity struct {
	*HavenBaseEntity
	Position       *int `json:"position,omitempty"`
	TargetPosition *int `json:"target_position,omitempty"`
}

func (c *HavenCoverEntity) GetPosition() *int { return c.Position }

// IsMoving reports whether the cover has a pending target it has not reached
func (c *HavenCoverEntity) IsMoving() bool {
	return c.TargetPosition != nil && (c.Position == nil || *c.TargetPosition != *c.Position)
}

// HavenClimateEntity exposes a thermostat-style device
type HavenClimateEntity struct {
	*HavenBaseEntity
	CurrentTemperature *float64 `json:"current_temperature,omitempty"`
	TargetTemperature  *float64 `json:"target_temperature,omitempty"`
	Humidity           *float64 `json:"humidity,omitempty"`
	HVACMode           string   `json:"hvac_mode,omitempty"`
}

// HavenWeatherEntity carries a condition plus forecast attributes
type HavenWeatherEntity struct {
	*HavenBaseEntity
	Condition   string   `json:"condition,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}
