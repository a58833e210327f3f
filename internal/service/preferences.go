package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/store"
	"github.com/likeshelf/likeshelf-server/internal/validation"
)

// UpdatePreferencesInput is the body of a preferences update.
// Nil fields are left unchanged.
type UpdatePreferencesInput struct {
	AutoCategorizationEnabled *bool     `json:"auto_categorization_enabled,omitempty"`
	DefaultCategories         *[]string `json:"default_categories,omitempty" validate:"omitempty,max=20,unique,dive,notblank,max=50"`
}

// PreferencesService reads and updates per-user preferences.
type PreferencesService struct {
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewPreferencesService creates a new preferences service.
func NewPreferencesService(s store.Store, validator *validation.Validator, logger *slog.Logger) *PreferencesService {
	return &PreferencesService{
		store:     s,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the user's preferences, falling back to the defaults for
// users who never synced. Defaults are not persisted here.
func (s *PreferencesService) Get(ctx context.Context, userID string) (*domain.Preferences, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewPreferences(userID), nil
	}
	if err != nil {
		return nil, storeError(err, "get preferences")
	}
	return prefs, nil
}

// Update applies the non-nil fields of in.
func (s *PreferencesService) Update(ctx context.Context, userID string, in UpdatePreferencesInput) (*domain.Preferences, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	prefs, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.AutoCategorizationEnabled != nil {
		prefs.AutoCategorizationEnabled = *in.AutoCategorizationEnabled
	}
	if in.DefaultCategories != nil {
		prefs.DefaultCategories = slices.Clone(*in.DefaultCategories)
	}
	prefs.UpdatedAt = s.now().UTC()

	if err := s.store.SavePreferences(ctx, prefs); err != nil {
		return nil, storeError(err, "save preferences")
	}

	s.logger.Info("preferences updated", "user_id", userID)
	return prefs, nil
}
