package badgerstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// categoryRecord is the stored form of a category. Count is the number of
// membership keys under idx:cats:likes:{id}: and changes only in the
// transaction that adds or removes one.
type categoryRecord struct {
	domain.Category
	Count int `json:"count"`
}

func loadCategory(txn *badger.Txn, ownerID, categoryID string) (*categoryRecord, error) {
	var rec categoryRecord
	if err := getJSON(txn, categoryKey(categoryID), &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound.WithMessage(fmt.Sprintf("category %s not found", categoryID))
		}
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, store.ErrNotFound.WithMessage(fmt.Sprintf("category %s not found", categoryID))
	}
	return &rec, nil
}

func insertCategory(txn *badger.Txn, c *domain.Category) error {
	taken, err := exists(txn, categoryNameKey(c.OwnerID, c.Name))
	if err != nil {
		return err
	}
	if taken {
		return store.DuplicateCategory(c.Name)
	}

	if err := setJSON(txn, categoryKey(c.ID), &categoryRecord{Category: *c}); err != nil {
		return err
	}
	if err := txn.Set(categoryOwnerKey(c.OwnerID, c.ID), nil); err != nil {
		return err
	}
	return txn.Set(categoryNameKey(c.OwnerID, c.Name), []byte(c.ID))
}

// CreateCategory inserts a new category.
// Returns store.ErrAlreadyExists when the owner already has the name.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertCategory(txn, c)
	})
}

// SeedCategories inserts cats when the owner has none, atomically.
func (s *Store) SeedCategories(ctx context.Context, ownerID string, cats []*domain.Category) (bool, error) {
	var created bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		created = false
		if hasPrefix(txn, categoryOwnerIndexPrefix(ownerID)) {
			return nil
		}
		for _, c := range cats {
			c.OwnerID = ownerID
			if err := insertCategory(txn, c); err != nil {
				return fmt.Errorf("seed category %q: %w", c.Name, err)
			}
		}
		created = true
		return nil
	})
	return created, err
}

// GetCategory retrieves a category owned by ownerID.
func (s *Store) GetCategory(_ context.Context, ownerID, categoryID string) (*domain.Category, error) {
	var c *domain.Category
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := loadCategory(txn, ownerID, categoryID)
		if err != nil {
			return err
		}
		c = &rec.Category
		return nil
	})
	return c, err
}

// UpdateCategory saves name and color changes, moving the name index entry on rename.
func (s *Store) UpdateCategory(ctx context.Context, c *domain.Category) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		rec, err := loadCategory(txn, c.OwnerID, c.ID)
		if err != nil {
			return err
		}

		if rec.Name != c.Name {
			taken, err := exists(txn, categoryNameKey(c.OwnerID, c.Name))
			if err != nil {
				return err
			}
			if taken {
				return store.DuplicateCategory(c.Name)
			}
			if err := txn.Delete(categoryNameKey(c.OwnerID, rec.Name)); err != nil {
				return err
			}
			if err := txn.Set(categoryNameKey(c.OwnerID, c.Name), []byte(c.ID)); err != nil {
				return err
			}
		}

		rec.Name = c.Name
		rec.Color = c.Color
		rec.UpdatedAt = c.UpdatedAt
		return setJSON(txn, categoryKey(c.ID), rec)
	})
}

// categoryDeleteBatch caps the memberships one DeleteCategory transaction
// rewrites, keeping large categories under Badger's transaction size limit.
var categoryDeleteBatch = 500

// DeleteCategory removes the category, its indexes, and its id from every
// member item. Memberships are dropped in batches, each in its own
// transaction that also lowers the counter, so every committed state is
// consistent. The category record and its name go in the final transaction,
// once no membership is left.
func (s *Store) DeleteCategory(ctx context.Context, ownerID, categoryID string) error {
	for {
		var done bool
		err := s.update(ctx, func(txn *badger.Txn) error {
			done = false
			rec, err := loadCategory(txn, ownerID, categoryID)
			if err != nil {
				return err
			}

			members := firstKeySuffixes(txn, categoryItemsIndexPrefix(categoryID), categoryDeleteBatch)
			if len(members) == 0 {
				done = true
				return deleteCategoryRecord(txn, rec)
			}

			for _, itemID := range members {
				if err := stripCategory(txn, categoryID, itemID); err != nil {
					return err
				}
			}
			rec.Count = max(rec.Count-len(members), 0)
			return setJSON(txn, categoryKey(categoryID), rec)
		})
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// stripCategory removes categoryID from the item and drops the membership key.
func stripCategory(txn *badger.Txn, categoryID, itemID string) error {
	var item domain.LikedItem
	err := getJSON(txn, itemKey(itemID), &item)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		item.CategoryIDs = slices.DeleteFunc(item.CategoryIDs, func(id string) bool {
			return id == categoryID
		})
		if err := putItem(txn, &item); err != nil {
			return err
		}
	}
	return txn.Delete(categoryItemKey(categoryID, itemID))
}

func deleteCategoryRecord(txn *badger.Txn, rec *categoryRecord) error {
	if err := txn.Delete(categoryNameKey(rec.OwnerID, rec.Name)); err != nil {
		return err
	}
	if err := txn.Delete(categoryOwnerKey(rec.OwnerID, rec.ID)); err != nil {
		return err
	}
	return txn.Delete(categoryKey(rec.ID))
}

func (s *Store) listCategoryRecords(ownerID string) ([]*categoryRecord, error) {
	var recs []*categoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		for _, catID := range keySuffixes(txn, categoryOwnerIndexPrefix(ownerID)) {
			rec, err := loadCategory(txn, ownerID, catID)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// ListCategories returns the owner's categories ordered by name.
func (s *Store) ListCategories(_ context.Context, ownerID string) ([]*domain.Category, error) {
	recs, err := s.listCategoryRecords(ownerID)
	if err != nil {
		return nil, err
	}

	cats := make([]*domain.Category, len(recs))
	for i, rec := range recs {
		cats[i] = &rec.Category
	}
	slices.SortFunc(cats, func(a, b *domain.Category) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return cats, nil
}

// CategoryStats reads every counter from one snapshot.
func (s *Store) CategoryStats(_ context.Context, ownerID string) ([]domain.CategoryStat, error) {
	recs, err := s.listCategoryRecords(ownerID)
	if err != nil {
		return nil, err
	}

	stats := make([]domain.CategoryStat, len(recs))
	for i, rec := range recs {
		stats[i] = domain.CategoryStat{
			ID:    rec.ID,
			Name:  rec.Name,
			Color: rec.Color,
			Count: rec.Count,
		}
	}
	domain.SortCategoryStats(stats)
	return stats, nil
}
