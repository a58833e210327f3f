// Package reconcile merges normalized feed items into storage.
//
// Identity is (owner, external id). Reconciling the same records any number
// of times converges to one stored item per record, and category membership
// set by the user survives every re-import.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/id"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// Result reports what one Reconcile call did.
type Result struct {
	Inserted int
	Updated  int
	// Dropped counts records without an external id plus in-batch duplicates.
	Dropped int
	Items   []*domain.LikedItem
}

// Imported is the number of records written.
func (r *Result) Imported() int {
	return r.Inserted + r.Updated
}

// Engine reconciles batches against an injected store.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a reconciliation engine.
func New(s store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// Reconcile upserts items for ownerID as one atomic batch.
// Within the batch the last record for an external id wins.
func (e *Engine) Reconcile(ctx context.Context, ownerID string, items []*domain.LikedItem) (*Result, error) {
	if ownerID == "" {
		return nil, domainerrors.Validation("owner id is required")
	}

	batch, dropped := prepare(ownerID, items, e.now().UTC())
	res := &Result{Dropped: dropped, Items: []*domain.LikedItem{}}
	if len(batch) == 0 {
		return res, nil
	}

	up, err := e.store.UpsertItems(ctx, ownerID, batch)
	if err != nil {
		e.logger.Error("reconcile batch failed",
			"user_id", ownerID,
			"batch_size", len(batch),
			"error", err,
		)
		return nil, domainerrors.Storage(err, "reconcile batch")
	}

	res.Inserted = up.Inserted
	res.Updated = up.Updated
	res.Items = up.Items

	e.logger.Debug("batch reconciled",
		"user_id", ownerID,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"dropped", res.Dropped,
	)
	return res, nil
}

// prepare filters, de-duplicates and stamps the batch.
func prepare(ownerID string, items []*domain.LikedItem, now time.Time) ([]*domain.LikedItem, int) {
	batch := make([]*domain.LikedItem, 0, len(items))
	pos := make(map[string]int, len(items))
	dropped := 0

	for _, item := range items {
		if item == nil || item.ExternalID == "" {
			dropped++
			continue
		}

		c := item.Clone()
		c.OwnerID = ownerID
		c.CategoryIDs = []string{}
		if c.ID == "" {
			c.ID = id.MustGenerate(id.PrefixLike)
		}
		c.CreatedAt = now
		c.UpdatedAt = now

		if i, ok := pos[c.ExternalID]; ok {
			c.ID = batch[i].ID
			batch[i] = c
			dropped++
			continue
		}
		pos[c.ExternalID] = len(batch)
		batch = append(batch, c)
	}
	return batch, dropped
}

// EnsureDefaults seeds the default categories when the owner has none and
// default preferences when they are missing. Safe to call on every sync.
func (e *Engine) EnsureDefaults(ctx context.Context, ownerID string) (bool, error) {
	if ownerID == "" {
		return false, domainerrors.Validation("owner id is required")
	}

	now := e.now().UTC()
	cats := make([]*domain.Category, len(domain.DefaultCategories))
	for i, seed := range domain.DefaultCategories {
		cats[i] = &domain.Category{
			ID:        id.MustGenerate(id.PrefixCategory),
			OwnerID:   ownerID,
			Name:      seed.Name,
			Color:     seed.Color,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	seeded, err := e.store.SeedCategories(ctx, ownerID, cats)
	if err != nil {
		return false, domainerrors.Storage(err, "seed default categories")
	}

	prefs := domain.NewPreferences(ownerID)
	prefs.UpdatedAt = now
	if _, err := e.store.CreatePreferencesIfMissing(ctx, prefs); err != nil {
		return seeded, domainerrors.Storage(err, "seed default preferences")
	}

	if seeded {
		e.logger.Info("seeded default categories",
			"user_id", ownerID,
			"count", len(cats),
		)
	}
	return seeded, nil
}
