package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/haven-automation/haven-hub/internal/database/models"
	"github.com/haven-automation/haven-hub/internal/database/repositories"
)

// EntityRepository implements repositories.EntityRepository
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository creates a new EntityRepository
func NewEntityRepository(db *sqlx.DB) repositories.EntityRepository {
	return &EntityRepository{db: db}
}

// Upsert inserts or replaces an entity snapshot
func (r *EntityRepository) Upsert(ctx context.Context, entity *models.EntityRow) error {
	query := `
		INSERT INTO entities (id, entry_id, entity_type, friendly_name, state, attributes, source, device_id, last_updated)
		VALUES (:id, :entry_id, :entity_type, :friendly_name, :state, :attributes, :source, :device_id, :last_updated)
		ON CONFLICT(id) DO UPDATE SET
			friendly_name = excluded.friendly_name,
			state = excluded.state,
			attributes = excluded.attributes,
			device_id = excluded.device_id,
			last_updated = excluded.last_updated
	`
	if _, err := r.db.NamedExecContext(ctx, query, entity); err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// GetAll retrieves all entity snapshots
func (r *EntityRepository) GetAll(ctx context.Context) ([]*models.EntityRow, error) {
	var rows []*models.EntityRow
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM entities ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	return rows, nil
}


// DeleteByEntry removes every entity snapshot belonging to a config entry
func (r *EntityRepository) DeleteByEntry(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM entities WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("failed to delete entities for entry %s: %w", entryID, err)
	}
	return nil
}
