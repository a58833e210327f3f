// Package di provides dependency injection configuration for the LikeShelf server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/likeshelf/likeshelf-server/internal/auth"
	"github.com/likeshelf/likeshelf-server/internal/config"
	"github.com/likeshelf/likeshelf-server/internal/di/providers"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/query"
	"github.com/likeshelf/likeshelf-server/internal/reconcile"
	"github.com/likeshelf/likeshelf-server/internal/service"
	"github.com/likeshelf/likeshelf-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideValidator)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Feed
	do.Provide(injector, providers.ProvideFeedClient)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideQueryEngine)
	do.Provide(injector, providers.ProvideReconciler)
	do.Provide(injector, providers.ProvideSyncService)
	do.Provide(injector, providers.ProvideLikeService)
	do.Provide(injector, providers.ProvideCategoryService)
	do.Provide(injector, providers.ProvidePreferencesService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and starts the HTTP server.
// This triggers lazy initialization of every provider.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.FeedClientHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*query.Engine](injector)
	_ = do.MustInvoke[*reconcile.Engine](injector)
	_ = do.MustInvoke[*service.SyncService](injector)
	_ = do.MustInvoke[*service.LikeService](injector)
	_ = do.MustInvoke[*service.CategoryService](injector)
	_ = do.MustInvoke[*service.PreferencesService](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
