package badgerstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/id"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// UpsertItems writes the batch in one transaction.
func (s *Store) UpsertItems(ctx context.Context, ownerID string, items []*domain.LikedItem) (*store.UpsertResult, error) {
	if len(items) == 0 {
		return &store.UpsertResult{Items: []*domain.LikedItem{}}, nil
	}

	// Fresh ids are drawn once so a retried transaction reuses them.
	freshIDs := make([]string, len(items))
	for i, item := range items {
		freshIDs[i] = item.ID
		if freshIDs[i] == "" {
			freshIDs[i] = id.MustGenerate(id.PrefixLike)
		}
	}
	now := time.Now()

	var res *store.UpsertResult
	err := s.update(ctx, func(txn *badger.Txn) error {
		res = &store.UpsertResult{Items: make([]*domain.LikedItem, 0, len(items))}

		for i, item := range items {
			if item.ExternalID == "" {
				return store.ErrInvalidInput.WithMessage("item has no external id")
			}

			existingID, err := getString(txn, itemExtKey(ownerID, item.ExternalID))
			switch {
			case errors.Is(err, store.ErrNotFound):
				rec := item.Clone()
				rec.ID = freshIDs[i]
				rec.OwnerID = ownerID
				rec.CategoryIDs = []string{}
				if rec.CreatedAt.IsZero() {
					rec.CreatedAt = now
				}
				if rec.UpdatedAt.IsZero() {
					rec.UpdatedAt = now
				}
				if err := putItem(txn, rec); err != nil {
					return err
				}
				if err := txn.Set(itemExtKey(ownerID, rec.ExternalID), []byte(rec.ID)); err != nil {
					return err
				}
				if err := txn.Set(itemOwnerKey(ownerID, rec.ID), nil); err != nil {
					return err
				}
				res.Inserted++
				res.Items = append(res.Items, rec)

			case err != nil:
				return err

			default:
				var rec domain.LikedItem
				if err := getJSON(txn, itemKey(existingID), &rec); err != nil {
					return err
				}
				if rec.OwnerID != ownerID {
					return fmt.Errorf("external id index for %q points at item %s owned by %q", ownerID, existingID, rec.OwnerID)
				}
				rec.Content = item.Content
				rec.Author = item.Author
				rec.LikedAt = item.LikedAt
				rec.Metrics = item.Metrics
				rec.HasMedia = item.HasMedia
				rec.UpdatedAt = item.UpdatedAt
				if rec.UpdatedAt.IsZero() {
					rec.UpdatedAt = now
				}
				if err := putItem(txn, &rec); err != nil {
					return err
				}
				res.Updated++
				res.Items = append(res.Items, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A duplicate external id later in the batch updates the earlier entry;
	// report the final stored state for each position.
	final := make(map[string]*domain.LikedItem, len(res.Items))
	for _, it := range res.Items {
		final[it.ID] = it
	}
	for i, it := range res.Items {
		res.Items[i] = final[it.ID].Clone()
	}
	return res, nil
}

func putItem(txn *badger.Txn, item *domain.LikedItem) error {
	if item.CategoryIDs == nil {
		item.CategoryIDs = []string{}
	}
	return setJSON(txn, itemKey(item.ID), item)
}

// loadItem reads an item and checks ownership.
func loadItem(txn *badger.Txn, ownerID, itemID string) (*domain.LikedItem, error) {
	var item domain.LikedItem
	if err := getJSON(txn, itemKey(itemID), &item); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound.WithMessage("liked item not found")
		}
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, store.ErrNotFound.WithMessage("liked item not found")
	}
	return &item, nil
}

// GetItem retrieves an item owned by ownerID.
func (s *Store) GetItem(_ context.Context, ownerID, itemID string) (*domain.LikedItem, error) {
	var item *domain.LikedItem
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = loadItem(txn, ownerID, itemID)
		return err
	})
	return item, err
}

// GetItemsByIDs returns the owner's items among itemIDs in input order.
func (s *Store) GetItemsByIDs(_ context.Context, ownerID string, itemIDs []string) ([]*domain.LikedItem, error) {
	items := make([]*domain.LikedItem, 0, len(itemIDs))
	seen := make(map[string]bool, len(itemIDs))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, itemID := range itemIDs {
			if seen[itemID] {
				continue
			}
			seen[itemID] = true

			item, err := loadItem(txn, ownerID, itemID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// ListItems returns every item the owner has, ordered by external id.
func (s *Store) ListItems(_ context.Context, ownerID string) ([]*domain.LikedItem, error) {
	items := []*domain.LikedItem{}

	err := s.db.View(func(txn *badger.Txn) error {
		for _, itemID := range keySuffixes(txn, itemOwnerIndexPrefix(ownerID)) {
			item, err := loadItem(txn, ownerID, itemID)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortByExternalID(items)
	return items, nil
}

// ListAllItems returns every stored item across owners.
func (s *Store) ListAllItems(_ context.Context) ([]*domain.LikedItem, error) {
	items := []*domain.LikedItem{}
	prefix := []byte(itemPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = 100

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item domain.LikedItem
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(items, func(a, b *domain.LikedItem) int {
		if c := cmp.Compare(a.OwnerID, b.OwnerID); c != 0 {
			return c
		}
		return cmp.Compare(a.ExternalID, b.ExternalID)
	})
	return items, nil
}

// CountItems returns how many items the owner has.
func (s *Store) CountItems(_ context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		n = len(keySuffixes(txn, itemOwnerIndexPrefix(ownerID)))
		return nil
	})
	return n, err
}

// SetItemCategories replaces the item's categories and adjusts the affected
// category counters in the same transaction.
func (s *Store) SetItemCategories(ctx context.Context, ownerID, itemID string, categoryIDs []string) (*domain.LikedItem, error) {
	wanted := dedupe(categoryIDs)

	var result *domain.LikedItem
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := loadItem(txn, ownerID, itemID)
		if err != nil {
			return err
		}

		cats := make(map[string]*categoryRecord, len(wanted))
		for _, catID := range wanted {
			rec, err := loadCategory(txn, ownerID, catID)
			if err != nil {
				return err
			}
			cats[catID] = rec
		}

		for _, catID := range item.CategoryIDs {
			if slices.Contains(wanted, catID) {
				continue
			}
			if err := removeMembership(txn, catID, itemID); err != nil {
				return err
			}
		}
		for _, catID := range wanted {
			if slices.Contains(item.CategoryIDs, catID) {
				continue
			}
			rec := cats[catID]
			rec.Count++
			if err := setJSON(txn, categoryKey(catID), rec); err != nil {
				return err
			}
			if err := txn.Set(categoryItemKey(catID, itemID), nil); err != nil {
				return err
			}
		}

		item.CategoryIDs = wanted
		item.UpdatedAt = time.Now()
		if err := putItem(txn, item); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// removeMembership drops one membership key and decrements the counter.
// A category that no longer exists is ignored.
func removeMembership(txn *badger.Txn, categoryID, itemID string) error {
	var rec categoryRecord
	err := getJSON(txn, categoryKey(categoryID), &rec)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		rec.Count = max(rec.Count-1, 0)
		if err := setJSON(txn, categoryKey(categoryID), &rec); err != nil {
			return err
		}
	}
	return txn.Delete(categoryItemKey(categoryID, itemID))
}

func sortByExternalID(items []*domain.LikedItem) {
	slices.SortFunc(items, func(a, b *domain.LikedItem) int {
		return cmp.Compare(a.ExternalID, b.ExternalID)
	})
}

// dedupe returns the distinct ids in ascending order.
func dedupe(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
