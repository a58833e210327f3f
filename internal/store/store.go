// Package store defines the persistence contract for liked items, categories,
// sync cursors and preferences.
//
// Two engines implement it: store/sqlite and store/badgerstore. Both run the
// store/storetest conformance suite, so callers can treat them as
// interchangeable.
package store

import (
	"context"

	"github.com/likeshelf/likeshelf-server/internal/domain"
)

// Store is the persistence interface used by the engine and services.
//
// Every method is scoped to one owner. A record that exists but belongs to
// another owner is reported as ErrNotFound.
type Store interface {
	// Lifecycle
	Close() error
	Ping(ctx context.Context) error

	// Liked items

	// UpsertItems writes a batch in one transaction keyed by (ownerID, ExternalID).
	// Existing rows keep ID, CreatedAt, owner and categories; all other fields
	// are overwritten. Either the whole batch commits or none of it does.
	UpsertItems(ctx context.Context, ownerID string, items []*domain.LikedItem) (*UpsertResult, error)
	GetItem(ctx context.Context, ownerID, itemID string) (*domain.LikedItem, error)
	GetItemsByIDs(ctx context.Context, ownerID string, itemIDs []string) ([]*domain.LikedItem, error)
	ListItems(ctx context.Context, ownerID string) ([]*domain.LikedItem, error)
	ListAllItems(ctx context.Context) ([]*domain.LikedItem, error)
	CountItems(ctx context.Context, ownerID string) (int, error)

	// SetItemCategories replaces the item's category set. Every category must
	// belong to ownerID; otherwise ErrNotFound is returned and nothing changes.
	SetItemCategories(ctx context.Context, ownerID, itemID string, categoryIDs []string) (*domain.LikedItem, error)

	// Categories
	CreateCategory(ctx context.Context, c *domain.Category) error
	// SeedCategories inserts cats atomically only when ownerID has no
	// categories yet. It reports whether anything was written.
	SeedCategories(ctx context.Context, ownerID string, cats []*domain.Category) (bool, error)
	GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error)
	UpdateCategory(ctx context.Context, c *domain.Category) error
	// DeleteCategory removes the category and its memberships in one transaction.
	DeleteCategory(ctx context.Context, ownerID, categoryID string) error
	ListCategories(ctx context.Context, ownerID string) ([]*domain.Category, error)
	CategoryStats(ctx context.Context, ownerID string) ([]domain.CategoryStat, error)

	// Sync cursors
	GetSyncCursor(ctx context.Context, ownerID string) (*domain.SyncCursor, error)
	SaveSyncCursor(ctx context.Context, cursor *domain.SyncCursor) error

	// Preferences
	GetPreferences(ctx context.Context, ownerID string) (*domain.Preferences, error)
	SavePreferences(ctx context.Context, prefs *domain.Preferences) error
	// CreatePreferencesIfMissing writes prefs unless the owner already has some.
	CreatePreferencesIfMissing(ctx context.Context, prefs *domain.Preferences) (bool, error)
}

// UpsertResult reports what a batch upsert did.
type UpsertResult struct {
	Inserted int
	Updated  int
	// Items holds the stored state of every item in the batch, in input order.
	Items []*domain.LikedItem
}
