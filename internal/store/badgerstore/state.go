package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// GetSyncCursor returns the owner's cursor, or store.ErrNotFound before the first sync.
func (s *Store) GetSyncCursor(_ context.Context, ownerID string) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, cursorKey(ownerID), &c)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound.WithMessage("sync cursor not found")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveSyncCursor replaces the owner's cursor.
func (s *Store) SaveSyncCursor(ctx context.Context, c *domain.SyncCursor) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, cursorKey(c.OwnerID), c)
	})
}

// GetPreferences returns the owner's preferences, or store.ErrNotFound.
func (s *Store) GetPreferences(_ context.Context, ownerID string) (*domain.Preferences, error) {
	var p domain.Preferences
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefsKey(ownerID), &p)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound.WithMessage("preferences not found")
	}
	if err != nil {
		return nil, err
	}
	if p.DefaultCategories == nil {
		p.DefaultCategories = []string{}
	}
	return &p, nil
}

// SavePreferences replaces the owner's preferences.
func (s *Store) SavePreferences(ctx context.Context, p *domain.Preferences) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, prefsKey(p.OwnerID), p)
	})
}

// CreatePreferencesIfMissing writes p unless the owner already has preferences.
func (s *Store) CreatePreferencesIfMissing(ctx context.Context, p *domain.Preferences) (bool, error) {
	var created bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		created = false
		ok, err := exists(txn, prefsKey(p.OwnerID))
		if err != nil || ok {
			return err
		}
		created = true
		return setJSON(txn, prefsKey(p.OwnerID), p)
	})
	return created, err
}
