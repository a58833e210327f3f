package providers

import (
	"github.com/samber/do/v2"

	"github.com/likeshelf/likeshelf-server/internal/config"
	"github.com/likeshelf/likeshelf-server/internal/feed"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/query"
	"github.com/likeshelf/likeshelf-server/internal/reconcile"
	"github.com/likeshelf/likeshelf-server/internal/service"
	"github.com/likeshelf/likeshelf-server/internal/validation"
)

// FeedClientHandle wraps the feed client with shutdown capability.
type FeedClientHandle struct {
	*feed.Client
}

// Shutdown implements do.Shutdownable.
func (h *FeedClientHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideFeedClient provides the rate-limited feed API client.
func ProvideFeedClient(i do.Injector) (*FeedClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := feed.New(feed.Options{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: cfg.Feed.Timeout,
		RPS:     cfg.Feed.RPS,
		Burst:   cfg.Feed.Burst,
	}, log.Logger)

	log.Info("Feed client ready", "base_url", cfg.Feed.BaseURL, "rps", cfg.Feed.RPS)

	return &FeedClientHandle{Client: client}, nil
}

// ProvideValidator provides the shared request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideQueryEngine provides the sorting engine with the configured collation.
func ProvideQueryEngine(i do.Injector) (*query.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return query.New(cfg.Query.Locale), nil
}

// ProvideReconciler provides the reconciliation engine.
func ProvideReconciler(i do.Injector) (*reconcile.Engine, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return reconcile.New(storeHandle.Store, log.Logger), nil
}

// ProvideSyncService provides the feed sync service.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	feedHandle := do.MustInvoke[*FeedClientHandle](i)
	reconciler := do.MustInvoke[*reconcile.Engine](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSyncService(
		storeHandle.Store,
		feedHandle.Client,
		reconciler,
		indexHandle.ItemIndex(),
		sseHandle.Manager,
		service.SyncOptions{
			PageSize:      cfg.Feed.PageSize,
			MaxPages:      cfg.Feed.MaxPages,
			FetchAttempts: cfg.Feed.FetchAttempts,
			RetryDelay:    cfg.Feed.RetryDelay,
		},
		log.Logger,
	), nil
}

// ProvideLikeService provides the liked item service.
func ProvideLikeService(i do.Injector) (*service.LikeService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	engine := do.MustInvoke[*query.Engine](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLikeService(storeHandle.Store, engine, indexHandle.ItemIndex(), sseHandle.Manager, log.Logger), nil
}

// ProvideCategoryService provides the category service.
func ProvideCategoryService(i do.Injector) (*service.CategoryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCategoryService(storeHandle.Store, validator, sseHandle.Manager, log.Logger), nil
}

// ProvidePreferencesService provides the preferences service.
func ProvidePreferencesService(i do.Injector) (*service.PreferencesService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewPreferencesService(storeHandle.Store, validator, log.Logger), nil
}
