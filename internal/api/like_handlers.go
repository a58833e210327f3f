package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/query"
	"github.com/likeshelf/likeshelf-server/internal/service"
	"github.com/likeshelf/likeshelf-server/internal/util"
)

func (s *Server) registerLikeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listLikes",
		Method:      http.MethodGet,
		Path:        "/api/v1/likes",
		Summary:     "List liked posts",
		Description: "Returns a page of the caller's liked posts, optionally filtered and sorted",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListLikes)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchLikes",
		Method:      http.MethodGet,
		Path:        "/api/v1/likes/search",
		Summary:     "Search liked posts",
		Description: "Case-insensitive substring search over content, author handle and display name",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearchLikes)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLike",
		Method:      http.MethodGet,
		Path:        "/api/v1/likes/{id}",
		Summary:     "Get liked post",
		Description: "Returns one liked post",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetLike)

	huma.Register(s.api, huma.Operation{
		OperationID: "assignLikeCategories",
		Method:      http.MethodPut,
		Path:        "/api/v1/likes/{id}/categories",
		Summary:     "Assign categories",
		Description: "Replaces the post's category set",
		Tags:        []string{"Likes"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAssignCategories)
}

// === DTOs ===

// AuthorResponse is the author snapshot of a liked post.
type AuthorResponse struct {
	Handle      string `json:"handle" doc:"Author handle without @"`
	DisplayName string `json:"display_name" doc:"Author display name"`
	AvatarURL   string `json:"avatar_url" doc:"Author avatar URL"`
}

// MetricsResponse holds engagement counters captured at import time.
type MetricsResponse struct {
	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`
}

// LikeResponse contains liked post data in API responses.
type LikeResponse struct {
	ID              string          `json:"id" doc:"Item ID"`
	ExternalID      string          `json:"external_id" doc:"Post ID on the source platform"`
	Content         string          `json:"content" doc:"Post text"`
	Author          AuthorResponse  `json:"author"`
	LikedAt         time.Time       `json:"liked_at" doc:"Post creation time"`
	LikedAtRelative string          `json:"liked_at_relative" doc:"Compact age such as 5m or 3w"`
	Metrics         MetricsResponse `json:"metrics"`
	HasMedia        bool            `json:"has_media"`
	CategoryIDs     []string        `json:"category_ids" doc:"Assigned category IDs"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ListLikesResponse is one page of liked posts.
type ListLikesResponse struct {
	Items  []LikeResponse `json:"items"`
	Total  int            `json:"total" doc:"Matching items before paging"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListLikesOutput wraps the list response for Huma.
type ListLikesOutput struct {
	Body ListLikesResponse
}

// ListLikesInput contains parameters for listing liked posts.
type ListLikesInput struct {
	Limit    int      `query:"limit" doc:"Page size, default 100, at most 500"`
	Offset   int      `query:"offset" doc:"Items to skip"`
	Search   string   `query:"search" doc:"Substring filter"`
	Category []string `query:"category" doc:"Category IDs; an item matches if it has any"`
	Sort     string   `query:"sort" doc:"recent (default), oldest, popular or author"`
}

// SearchLikesInput contains parameters for searching liked posts.
type SearchLikesInput struct {
	Q        string   `query:"q" doc:"Search term"`
	Limit    int      `query:"limit" doc:"Page size, default 100, at most 500"`
	Offset   int      `query:"offset" doc:"Items to skip"`
	Category []string `query:"category" doc:"Category IDs; an item matches if it has any"`
	Sort     string   `query:"sort" doc:"recent (default), oldest, popular or author"`
}

// GetLikeInput contains parameters for getting a liked post.
type GetLikeInput struct {
	ID string `path:"id" doc:"Item ID"`
}

// LikeOutput wraps a liked post for Huma.
type LikeOutput struct {
	Body LikeResponse
}

// AssignCategoriesRequest is the request body for assigning categories.
type AssignCategoriesRequest struct {
	CategoryIDs []string `json:"category_ids" doc:"The complete new category set; empty clears it"`
}

// AssignCategoriesInput wraps the assign request for Huma.
type AssignCategoriesInput struct {
	ID   string `path:"id" doc:"Item ID"`
	Body AssignCategoriesRequest
}

// === Handlers ===

func (s *Server) handleListLikes(ctx context.Context, input *ListLikesInput) (*ListLikesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	params, err := listParams(input.Search, input.Category, input.Sort, input.Limit, input.Offset)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}

	page, err := s.services.Like.List(ctx, userID, params)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &ListLikesOutput{Body: s.pageResponse(page)}, nil
}

func (s *Server) handleSearchLikes(ctx context.Context, input *SearchLikesInput) (*ListLikesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	params, err := listParams(input.Q, input.Category, input.Sort, input.Limit, input.Offset)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}

	page, err := s.services.Like.Search(ctx, userID, params)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &ListLikesOutput{Body: s.pageResponse(page)}, nil
}

func (s *Server) handleGetLike(ctx context.Context, input *GetLikeInput) (*LikeOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	item, err := s.services.Like.Get(ctx, userID, input.ID)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &LikeOutput{Body: toLikeResponse(item, s.now())}, nil
}

func (s *Server) handleAssignCategories(ctx context.Context, input *AssignCategoriesInput) (*LikeOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	item, err := s.services.Like.AssignCategories(ctx, userID, input.ID, input.Body.CategoryIDs)
	if err != nil {
		return nil, s.apiError(ctx, err)
	}
	return &LikeOutput{Body: toLikeResponse(item, s.now())}, nil
}

// === Helpers ===

func listParams(search string, categories []string, sort string, limit, offset int) (service.ListParams, error) {
	by, err := query.ParseSort(sort)
	if err != nil {
		return service.ListParams{}, domainerrors.ValidationWithDetails("invalid sort", map[string]string{
			"sort": "must be one of: recent oldest popular author",
		})
	}
	return service.ListParams{
		Search:      search,
		CategoryIDs: categories,
		Sort:        by,
		Limit:       limit,
		Offset:      offset,
	}, nil
}

func (s *Server) pageResponse(page *service.ItemPage) ListLikesResponse {
	now := s.now()
	items := make([]LikeResponse, len(page.Items))
	for i, it := range page.Items {
		items[i] = toLikeResponse(it, now)
	}
	return ListLikesResponse{
		Items:  items,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
}

func toLikeResponse(it *domain.LikedItem, now time.Time) LikeResponse {
	categoryIDs := it.CategoryIDs
	if categoryIDs == nil {
		categoryIDs = []string{}
	}
	return LikeResponse{
		ID:         it.ID,
		ExternalID: it.ExternalID,
		Content:    it.Content,
		Author: AuthorResponse{
			Handle:      it.Author.Handle,
			DisplayName: it.Author.DisplayName,
			AvatarURL:   it.Author.AvatarURL,
		},
		LikedAt:         it.LikedAt,
		LikedAtRelative: util.RelativeTime(it.LikedAt, now),
		Metrics: MetricsResponse{
			Likes:   it.Metrics.LikeCount,
			Reposts: it.Metrics.RepostCount,
			Replies: it.Metrics.ReplyCount,
		},
		HasMedia:    it.HasMedia,
		CategoryIDs: categoryIDs,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}
