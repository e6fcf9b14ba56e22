package models

import "time"

// ConfigEntryRow is the persisted form of a config entry. Data is the flow
// output serialized as JSON.
type ConfigEntryRow struct {
	ID        string    `db:"id"`
	Domain    string    `db:"domain"`
	Title     string    `db:"title"`
	UniqueID  string    `db:"unique_id"`
	Data      string    `db:"data"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EntityRow is the persisted snapshot of an entity, used to restore last
// known states across restarts. Attributes is JSON.
type EntityRow struct {
	ID           string    `db:"id"`
	EntryID      string    `db:"entry_id"`
	EntityType   string    `db:"entity_type"`
	FriendlyName string    `db:"friendly_name"`
	State        string    `db:"state"`
	Attributes   string    `db:"attributes"`
	Source       string    `db:"source"`
	DeviceID     *string   `db:"device_id"`
	LastUpdated  time.Time `db:"last_updated"`
}

// DeviceRow groups entities under the physical device they belong to
type DeviceRow struct {
	ID           string    `db:"id"`
	EntryID      string    `db:"entry_id"`
	Source       string    `db:"source"`
	Name         string    `db:"name"`
	Manufacturer string    `db:"manufacturer"`
	Model        string    `db:"model"`
	SWVersion    string    `db:"sw_version"`
	CreatedAt    time.Time `db:"created_at"`
}
