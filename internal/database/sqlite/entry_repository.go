package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/database/models"
	"github.com/haven-automation/haven-hub/internal/database/repositories"
)

// EntryRepository implements repositories.EntryRepository
type EntryRepository struct {
	db *sqlx.DB
}

// NewEntryRepository creates a new EntryRepository
func NewEntryRepository(db *sqlx.DB) repositories.EntryRepository {
	return &EntryRepository{db: db}
}

// SaveEntry inserts or replaces a config entry
func (r *EntryRepository) SaveEntry(ctx context.Context, entry *entries.ConfigEntry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal entry data: %w", err)
	}

	query := `
		INSERT INTO config_entries (id, domain, title, unique_id, data, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			unique_id = excluded.unique_id,
			data = excluded.data,
			state = excluded.state,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.Domain, entry.Title, entry.UniqueID,
		string(data), string(entry.State), entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save config entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a config entry
func (r *EntryRepository) DeleteEntry(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete config entry: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("config entry not found: %s", id)
	}
	return nil
}

// ListEntries returns all persisted config entries
func (r *EntryRepository) ListEntries(ctx context.Context) ([]*entries.ConfigEntry, error) {
	var rows []models.ConfigEntryRow
	query := "SELECT id, domain, title, unique_id, data, state, created_at, updated_at FROM config_entries ORDER BY created_at"
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config entries: %w", err)
	}

	out := make([]*entries.ConfigEntry, 0, len(rows))
	for _, row := range rows {
		entry := &entries.ConfigEntry{
			ID:        row.ID,
			Domain:    row.Domain,
			Title:     row.Title,
			UniqueID:  row.UniqueID,
			State:     entries.EntryState(row.State),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if err := json.Unmarshal([]byte(row.Data), &entry.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data for entry %s: %w", row.ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
