package database

import (
	"github.com/jmoiron/sqlx"

	"github.com/haven-automation/haven-hub/internal/database/repositories"
	"github.com/haven-automation/haven-hub/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	Entry  repositories.EntryRepository
	Entity repositories.EntityRepository
	Device repositories.DeviceRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Entry:  sqlite.NewEntryRepository(db),
		Entity: sqlite.NewEntityRepository(db),
		Device: sqlite.NewDeviceRepository(db),
	}
}
