package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// GetSyncCursor returns the owner's cursor, or store.ErrNotFound before the first sync.
func (s *Store) GetSyncCursor(ctx context.Context, ownerID string) (*domain.SyncCursor, error) {
	var (
		c          = domain.SyncCursor{OwnerID: ownerID}
		nextToken  sql.NullString
		lastSyncAt sql.NullString
		updatedAt  string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT next_token, last_sync_at, updated_at
		FROM sync_cursors WHERE owner_id = ?`, ownerID,
	).Scan(&nextToken, &lastSyncAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("sync cursor not found")
	}
	if err != nil {
		return nil, err
	}

	c.NextToken = nextToken.String
	if c.LastSyncAt, err = parseNullableTime(lastSyncAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveSyncCursor inserts or replaces the owner's cursor.
func (s *Store) SaveSyncCursor(ctx context.Context, c *domain.SyncCursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (owner_id, next_token, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			next_token = excluded.next_token,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at`,
		c.OwnerID,
		nullString(c.NextToken),
		nullTimeString(c.LastSyncAt),
		formatTime(c.UpdatedAt),
	)
	return err
}
