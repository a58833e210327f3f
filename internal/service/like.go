package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/query"
	"github.com/likeshelf/likeshelf-server/internal/search"
	"github.com/likeshelf/likeshelf-server/internal/sse"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// List limits.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
	// MaxCategoriesPerItem bounds one assignment request.
	MaxCategoriesPerItem = 50
)

// candidateChunk bounds the id list of one GetItemsByIDs call.
const candidateChunk = 500

// ItemIndex is the candidate index used to narrow searches.
type ItemIndex interface {
	// BeginWrite precedes a store commit; end runs once the committed
	// items are indexed or the commit failed.
	BeginWrite() (end func(), err error)
	IndexItems(items []*domain.LikedItem) error
	Candidates(ctx context.Context, ownerID, term string) ([]string, error)
}

// ListParams selects a page of a user's liked items.
type ListParams struct {
	Search      string
	CategoryIDs []string
	Sort        query.Sort
	Limit       int
	Offset      int
}

// ItemPage is one page of results plus the total before paging.
type ItemPage struct {
	Items  []*domain.LikedItem
	Total  int
	Limit  int
	Offset int
}

// LikeService answers item views and category assignments.
type LikeService struct {
	store  store.Store
	engine *query.Engine
	index  ItemIndex
	events sse.Emitter
	logger *slog.Logger
}

// NewLikeService creates a like service. index may be nil.
func NewLikeService(s store.Store, engine *query.Engine, index ItemIndex, events sse.Emitter, logger *slog.Logger) *LikeService {
	return &LikeService{
		store:  s,
		engine: engine,
		index:  index,
		events: events,
		logger: logger,
	}
}

func normalizeListParams(p *ListParams) error {
	if p.Offset < 0 {
		return domainerrors.Validation("offset must not be negative")
	}
	switch {
	case p.Limit < 0:
		return domainerrors.Validation("limit must not be negative")
	case p.Limit == 0:
		p.Limit = DefaultListLimit
	case p.Limit > MaxListLimit:
		p.Limit = MaxListLimit
	}
	if p.Sort == "" {
		p.Sort = query.SortRecent
	}
	return nil
}

// List returns the user's items filtered, sorted and paged.
func (s *LikeService) List(ctx context.Context, userID string, p ListParams) (*ItemPage, error) {
	if err := normalizeListParams(&p); err != nil {
		return nil, err
	}

	items, err := s.store.ListItems(ctx, userID)
	if err != nil {
		return nil, storeError(err, "list items")
	}
	return s.page(items, p), nil
}

// Search returns the user's items containing term in content, handle or
// display name. The candidate index narrows the scan when it can; results
// are always checked with the exact matcher, so they equal a full scan.
func (s *LikeService) Search(ctx context.Context, userID string, p ListParams) (*ItemPage, error) {
	if err := normalizeListParams(&p); err != nil {
		return nil, err
	}

	items, err := s.searchCandidates(ctx, userID, p.Search)
	if err != nil {
		return nil, err
	}
	return s.page(items, p), nil
}

func (s *LikeService) page(items []*domain.LikedItem, p ListParams) *ItemPage {
	matched := s.engine.Sort(query.Filter(items, query.Params{
		Search:      p.Search,
		CategoryIDs: p.CategoryIDs,
	}), p.Sort)

	return &ItemPage{
		Items:  query.Page(matched, p.Limit, p.Offset),
		Total:  len(matched),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
}

// searchCandidates loads the items the index proposes for term, or every
// item of the user when the index can't answer.
func (s *LikeService) searchCandidates(ctx context.Context, userID, term string) ([]*domain.LikedItem, error) {
	if s.index == nil || strings.TrimSpace(term) == "" {
		return s.listAll(ctx, userID)
	}

	ids, err := s.index.Candidates(ctx, userID, term)
	if err != nil {
		if !errors.Is(err, search.ErrUnsupportedTerm) {
			s.logger.Warn("search index unavailable, scanning all items",
				"user_id", userID,
				"error", err,
			)
		}
		return s.listAll(ctx, userID)
	}

	items := make([]*domain.LikedItem, 0, len(ids))
	for chunk := range slices.Chunk(ids, candidateChunk) {
		batch, err := s.store.GetItemsByIDs(ctx, userID, chunk)
		if err != nil {
			return nil, storeError(err, "load search candidates")
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (s *LikeService) listAll(ctx context.Context, userID string) ([]*domain.LikedItem, error) {
	items, err := s.store.ListItems(ctx, userID)
	if err != nil {
		return nil, storeError(err, "list items")
	}
	return items, nil
}

// Get returns one item.
func (s *LikeService) Get(ctx context.Context, userID, itemID string) (*domain.LikedItem, error) {
	item, err := s.store.GetItem(ctx, userID, itemID)
	if err != nil {
		return nil, storeError(err, "get item")
	}
	return item, nil
}

// AssignCategories replaces the item's category set with categoryIDs.
// Duplicates collapse. A missing item, or a category that is missing or
// owned by someone else, fails with NOT_FOUND and changes nothing.
func (s *LikeService) AssignCategories(ctx context.Context, userID, itemID string, categoryIDs []string) (*domain.LikedItem, error) {
	if len(categoryIDs) > MaxCategoriesPerItem {
		return nil, domainerrors.Validationf("at most %d categories per item", MaxCategoriesPerItem)
	}
	for _, cid := range categoryIDs {
		if strings.TrimSpace(cid) == "" {
			return nil, domainerrors.Validation("category ids must not be blank")
		}
	}

	item, err := s.store.SetItemCategories(ctx, userID, itemID, categoryIDs)
	if err != nil {
		return nil, storeError(err, "assign categories")
	}

	s.events.Emit(sse.NewLikeCategoriesUpdatedEvent(item))
	s.logger.Info("categories assigned",
		"user_id", userID,
		"like_id", itemID,
		"count", len(item.CategoryIDs),
	)
	return item, nil
}
