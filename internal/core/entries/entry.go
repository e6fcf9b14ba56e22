package entries

import (
	"context"
	"time"
)

// EntryState tracks where a config entry sits in its setup lifecycle
type EntryState string

const (
	StateNotLoaded    EntryState = "not_loaded"
	StateInProgress   EntryState = "in_progress"
	StateLoaded       EntryState = "loaded"
	StateSetupError   EntryState = "setup_error"
	StateSetupRetry   EntryState = "setup_retry"
	StateFailedUnload EntryState = "failed_unload"
)

// ConfigEntry is one configured instance of an integration. Data holds the
// connection parameters the flow collected (host, credentials, webhook ID).
type ConfigEntry struct {
	ID        string                 `json:"id" db:"id"`
	Domain    string                 `json:"domain" db:"domain"`
	Title     string                 `json:"title" db:"title"`
	UniqueID  string                 `json:"unique_id,omitempty" db:"unique_id"`
	Data      map[string]interface{} `json:"data" db:"-"`
	State     EntryState             `json:"state" db:"state"`
	Reason    string                 `json:"reason,omitempty" db:"-"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// UnloadFunc tears down everything a setup created for the entry
type UnloadFunc func(ctx context.Context) error

// SetupFunc builds an integration instance for an entry: connects the
// client, starts coordinators, registers entities. It returns the matching
// teardown. Sentinel errors from the coordinator package steer the
// lifecycle: auth failures start reauth, not-ready schedules a retry.
type SetupFunc func(ctx context.Context, entry *ConfigEntry) (UnloadFunc, error)

// Store persists config entries across restarts
type Store interface {
	SaveEntry(ctx context.Context, entry *ConfigEntry) error
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context) ([]*ConfigEntry, error)
}

// GetString reads a string field from the entry data
func (e *ConfigEntry) GetString(key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// GetInt reads a numeric field from the entry data. JSON round-trips store
// numbers as float64.
func (e *ConfigEntry) GetInt(key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// GetBool reads a boolean field from the entry data
func (e *ConfigEntry) GetBool(key string) bool {
	if v, ok := e.Data[key].(bool); ok {
		return v
	}
	return false
}

func (e *ConfigEntry) clone() *ConfigEntry {
	c := *e
	c.Data = make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		c.Data[k] = v
	}
	return &c
}
