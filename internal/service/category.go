package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/id"
	"github.com/likeshelf/likeshelf-server/internal/sse"
	"github.com/likeshelf/likeshelf-server/internal/store"
	"github.com/likeshelf/likeshelf-server/internal/validation"
)

// CreateCategoryInput is the body of a category create request.
type CreateCategoryInput struct {
	Name  string `json:"name" validate:"notblank,max=50"`
	Color string `json:"color,omitempty" validate:"omitempty,color"`
}

// UpdateCategoryInput is the body of a category update request.
// Nil fields are left unchanged.
type UpdateCategoryInput struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,notblank,max=50"`
	Color *string `json:"color,omitempty" validate:"omitempty,color"`
}

// CategoryService manages a user's categories.
type CategoryService struct {
	store     store.Store
	validator *validation.Validator
	events    sse.Emitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewCategoryService creates a new category service.
func NewCategoryService(s store.Store, validator *validation.Validator, events sse.Emitter, logger *slog.Logger) *CategoryService {
	return &CategoryService{
		store:     s,
		validator: validator,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// Create adds a category. Names are trimmed and must be unique per user;
// a clash fails with DUPLICATE_NAME. An empty color gets the default.
func (s *CategoryService) Create(ctx context.Context, userID string, in CreateCategoryInput) (*domain.Category, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	color := in.Color
	if color == "" {
		color = domain.DefaultCategoryColor
	}

	categoryID, err := id.Generate(id.PrefixCategory)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate category id")
	}

	now := s.now().UTC()
	c := &domain.Category{
		ID:        categoryID,
		OwnerID:   userID,
		Name:      strings.TrimSpace(in.Name),
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, storeError(err, "create category")
	}

	s.events.Emit(sse.NewCategoryCreatedEvent(c))
	s.logger.Info("category created",
		"user_id", userID,
		"category_id", c.ID,
		"name", c.Name,
	)
	return c, nil
}

// Update renames or recolors a category.
func (s *CategoryService) Update(ctx context.Context, userID, categoryID string, in UpdateCategoryInput) (*domain.Category, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	// omitempty lets a pointer to "" through.
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{"name": "is required"})
	}

	c, err := s.store.GetCategory(ctx, userID, categoryID)
	if err != nil {
		return nil, storeError(err, "get category")
	}

	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Color != nil {
		c.Color = *in.Color
	}
	c.Touch(s.now())

	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, storeError(err, "update category")
	}

	s.events.Emit(sse.NewCategoryUpdatedEvent(c))
	return c, nil
}

// Delete removes a category and detaches it from every item.
func (s *CategoryService) Delete(ctx context.Context, userID, categoryID string) error {
	if err := s.store.DeleteCategory(ctx, userID, categoryID); err != nil {
		return storeError(err, "delete category")
	}

	s.events.Emit(sse.NewCategoryDeletedEvent(userID, categoryID))
	s.logger.Info("category deleted", "user_id", userID, "category_id", categoryID)
	return nil
}

// List returns the user's categories ordered by name.
func (s *CategoryService) List(ctx context.Context, userID string) ([]*domain.Category, error) {
	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, storeError(err, "list categories")
	}
	return cats, nil
}

// Stats returns item counts per category, most used first.
func (s *CategoryService) Stats(ctx context.Context, userID string) ([]domain.CategoryStat, error) {
	stats, err := s.store.CategoryStats(ctx, userID)
	if err != nil {
		return nil, storeError(err, "category stats")
	}
	return stats, nil
}
