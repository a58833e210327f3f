package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/service"
)

func (s *Server) registerPreferencesRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getPreferences",
		Method:      http.MethodGet,
		Path:        "/api/v1/preferences",
		Summary:     "Get preferences",
		Description: "Returns the caller's categorization preferences",
		Tags:        []string{"Preferences"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetPreferences)

	huma.Register(s.api, huma.Operation{
		OperationID: "updatePreferences",
		Method:      http.MethodPatch,
		Path:        "/api/v1/preferences",
		Summary:     "Update preferences",
		Description: "Updates the supplied preference fields",
		Tags:        []string{"Preferences"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdatePreferences)
}

// PreferencesResponse contains preferences in API responses.
type PreferencesResponse struct {
	AutoCategorizationEnabled bool       `json:"auto_categorization_enabled"`
	DefaultCategories         []string   `json:"default_categories"`
	LastSyncAt                *time.Time `json:"last_sync_at,omitempty" doc:"Completion time of the last full sync"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// PreferencesOutput wraps the preferences response for Huma.
type PreferencesOutput struct {
	Body PreferencesResponse
}

// UpdatePreferencesRequest is the request body for updating preferences.
type UpdatePreferencesRequest struct {
	AutoCategorizationEnabled *bool     `json:"auto_categorization_enabled,omitempty"`
	DefaultCategories         *[]string `json:"default_categories,omitempty" doc:"Up to 20 unique names"`
}

// UpdatePreferencesInput wraps the update request for Huma.
type UpdatePreferencesInput struct {
	Body UpdatePreferencesRequest
}

func (s *Server) handleGetPreferences(ctx context.Context, _ *struct{}) (*PreferencesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	prefs, err := s.services.Preferences.Get(ctx, userID)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &PreferencesOutput{Body: toPreferencesResponse(prefs)}, nil
}

func (s *Server) handleUpdatePreferences(ctx context.Context, input *UpdatePreferencesInput) (*PreferencesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	prefs, err := s.services.Preferences.Update(ctx, userID, service.UpdatePreferencesInput{
		AutoCategorizationEnabled: input.Body.AutoCategorizationEnabled,
		DefaultCategories:         input.Body.DefaultCategories,
	})
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &PreferencesOutput{Body: toPreferencesResponse(prefs)}, nil
}

func toPreferencesResponse(p *domain.Preferences) PreferencesResponse {
	cats := p.DefaultCategories
	if cats == nil {
		cats = []string{}
	}
	return PreferencesResponse{
		AutoCategorizationEnabled: p.AutoCategorizationEnabled,
		DefaultCategories:         cats,
		LastSyncAt:                p.LastSyncAt,
		UpdatedAt:                 p.UpdatedAt,
	}
}
