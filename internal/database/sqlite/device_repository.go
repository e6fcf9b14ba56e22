package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/haven-automation/haven-hub/internal/database/models"
	"github.com/haven-automation/haven-hub/internal/database/repositories"
)

// DeviceRepository implements repositories.DeviceRepository
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository creates a new DeviceRepository
func NewDeviceRepository(db *sqlx.DB) repositories.DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert inserts or replaces a device record
func (r *DeviceRepository) Upsert(ctx context.Context, device *models.DeviceRow) error {
	query := `
		INSERT INTO devices (id, entry_id, source, name, manufacturer, model, sw_version, created_at)
		VALUES (:id, :entry_id, :source, :name, :manufacturer, :model, :sw_version, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			sw_version = excluded.sw_version
	`
	if _, err := r.db.NamedExecContext(ctx, query, device); err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// GetAll retrieves every device record
func (r *DeviceRepository) GetAll(ctx context.Context) ([]*models.DeviceRow, error) {
	var rows []*models.DeviceRow
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM devices ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	return rows, nil
}

// DeleteByEntry removes every device belonging to a config entry
func (r *DeviceRepository) DeleteByEntry(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("failed to delete devices for entry %s: %w", entryID, err)
	}
	return nil
}
