package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/likeshelf/likeshelf-server/internal/config"
	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/search"
	"github.com/likeshelf/likeshelf-server/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
// SearchIndex is nil when the index is disabled.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	if h.SearchIndex == nil {
		return nil
	}
	return h.Close()
}

// ItemIndex returns the index for the services, or an untyped nil when
// disabled so nil checks behind the interface hold.
func (h *SearchIndexHandle) ItemIndex() service.ItemIndex {
	if h.SearchIndex == nil {
		return nil
	}
	return h.SearchIndex
}

// ProvideSearchIndex provides the Bleve candidate index.
// A failure to open the index only disables it; searches fall back to full scans.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Search index disabled by configuration")
		return &SearchIndexHandle{}, nil
	}

	index, err := search.NewSearchIndex(search.Options{
		DataPath: filepath.Join(cfg.Data.BasePath, "search"),
		Logger:   log.Logger,
	})
	if err != nil {
		log.Warn("Search index unavailable, searches will scan all items", "error", err)
		return &SearchIndexHandle{}, nil
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// TriggerSearchReindexIfNeeded rebuilds the index in the background when it
// can't be trusted: a write was interrupted, or its document count differs
// from the store's item count. The index is invalidated before this returns,
// so searches scan the store until the rebuild completes.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	if indexHandle.SearchIndex == nil {
		return
	}

	ctx := context.Background()
	items, err := storeHandle.ListAllItems(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not count stored items, rebuilding search index")
	} else if !indexHandle.NeedsRebuild(len(items)) {
		return
	}

	docCount, _ := indexHandle.DocumentCount()
	log.Info("Search index out of date, triggering reindex",
		"item_count", len(items),
		"documents", docCount,
		"healthy", indexHandle.Healthy(),
	)
	indexHandle.Invalidate()

	go func() {
		load := func() ([]*domain.LikedItem, error) {
			return storeHandle.ListAllItems(ctx)
		}
		if err := indexHandle.Rebuild(load); err != nil {
			log.WithError(err).Error("Search reindex failed, searches will scan all items")
			return
		}
		count, _ := indexHandle.DocumentCount()
		log.Info("Search reindex completed", "documents", count)
	}()
}
