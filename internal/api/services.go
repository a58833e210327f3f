package api

import (
	"context"

	"github.com/likeshelf/likeshelf-server/internal/feed"
	"github.com/likeshelf/likeshelf-server/internal/service"
)

// FeedLookup resolves platform accounts for the caller.
type FeedLookup interface {
	LookupUser(ctx context.Context, cred feed.Credential, username string) (*feed.User, error)
}

// SearchHealth reports on the candidate index.
type SearchHealth interface {
	Healthy() bool
	DocumentCount() (uint64, error)
}

// Services groups the business services used by the API server.
type Services struct {
	Sync        *service.SyncService
	Like        *service.LikeService
	Category    *service.CategoryService
	Preferences *service.PreferencesService
	Feed        FeedLookup
	Search      SearchHealth // nil when the index is disabled
}
