package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/likeshelf/likeshelf-server/internal/service"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "runSync",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync",
		Summary:     "Sync liked posts",
		Description: "Imports the caller's liked posts from the feed, resuming from the last saved cursor",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
		Errors:      []int{http.StatusUnauthorized, http.StatusConflict, http.StatusTooManyRequests, http.StatusBadGateway},
	}, s.handleRunSync)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/status",
		Summary:     "Get sync status",
		Description: "Returns the saved cursor, last sync time and whether a run is in progress",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSyncStatus)
}

// SyncOutput wraps the sync result for Huma.
type SyncOutput struct {
	Body *service.SyncResult
}

// SyncStatusOutput wraps the sync status for Huma.
type SyncStatusOutput struct {
	Body *service.SyncStatus
}

func (s *Server) handleRunSync(ctx context.Context, _ *struct{}) (*SyncOutput, error) {
	session, err := GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.allowSync(session.UserID); err != nil {
		return nil, s.apiError(ctx, err)
	}

	result, err := s.services.Sync.Sync(ctx, session)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &SyncOutput{Body: result}, nil
}

func (s *Server) handleGetSyncStatus(ctx context.Context, _ *struct{}) (*SyncStatusOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	status, err := s.services.Sync.Status(ctx, userID)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &SyncStatusOutput{Body: status}, nil
}
