package repositories

import (
	"context"

	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/database/models"
)

// EntryRepository persists config entries. It satisfies entries.Store so
// the entry manager can be handed a repository directly.
type EntryRepository interface {
	SaveEntry(ctx context.Context, entry *entries.ConfigEntry) error
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context) ([]*entries.ConfigEntry, error)
}

// EntityRepository persists entity state snapshots. GetAll backs the
// startup restore pass; snapshots are dropped per entry when it goes away.
type EntityRepository interface {
	Upsert(ctx context.Context, entity *models.EntityRow) error
	GetAll(ctx context.Context) ([]*models.EntityRow, error)
	DeleteByEntry(ctx context.Context, entryID string) error
}

// DeviceRepository persists device-registry records
type DeviceRepository interface {
	Upsert(ctx context.Context, device *models.DeviceRow) error
	GetAll(ctx context.Context) ([]*models.DeviceRow, error)
	DeleteByEntry(ctx context.Context, entryID string) error
}
