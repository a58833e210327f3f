package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// GetPreferences returns the owner's preferences, or store.ErrNotFound.
func (s *Store) GetPreferences(ctx context.Context, ownerID string) (*domain.Preferences, error) {
	var (
		p          = domain.Preferences{OwnerID: ownerID}
		auto       int
		defaults   string
		lastSyncAt sql.NullString
		updatedAt  string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT auto_categorization, default_categories, last_sync_at, updated_at
		FROM preferences WHERE owner_id = ?`, ownerID,
	).Scan(&auto, &defaults, &lastSyncAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("preferences not found")
	}
	if err != nil {
		return nil, err
	}

	p.AutoCategorizationEnabled = auto != 0
	if err := json.Unmarshal([]byte(defaults), &p.DefaultCategories); err != nil {
		return nil, fmt.Errorf("decode default categories: %w", err)
	}
	if p.DefaultCategories == nil {
		p.DefaultCategories = []string{}
	}
	if p.LastSyncAt, err = parseNullableTime(lastSyncAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePreferences inserts or replaces the owner's preferences.
func (s *Store) SavePreferences(ctx context.Context, p *domain.Preferences) error {
	args, err := preferenceArgs(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (owner_id, auto_categorization, default_categories, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			auto_categorization = excluded.auto_categorization,
			default_categories = excluded.default_categories,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at`,
		args...,
	)
	return err
}

// CreatePreferencesIfMissing inserts p unless the owner already has preferences.
func (s *Store) CreatePreferencesIfMissing(ctx context.Context, p *domain.Preferences) (bool, error) {
	args, err := preferenceArgs(p)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (owner_id, auto_categorization, default_categories, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO NOTHING`,
		args...,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func preferenceArgs(p *domain.Preferences) ([]any, error) {
	defaults := p.DefaultCategories
	if defaults == nil {
		defaults = []string{}
	}
	data, err := json.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("encode default categories: %w", err)
	}
	return []any{
		p.OwnerID,
		boolToInt(p.AutoCategorizationEnabled),
		string(data),
		nullTimeString(p.LastSyncAt),
		formatTime(p.UpdatedAt),
	}, nil
}
