package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/store"
	"github.com/likeshelf/likeshelf-server/internal/store/sqlite"
)

func setupEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, logger.Discard()), s
}

func item(externalID, content string) *domain.LikedItem {
	return &domain.LikedItem{
		ExternalID: externalID,
		Content:    content,
		Author:     domain.UnknownAuthor(),
		LikedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconcile_IsIdempotent(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	batch := []*domain.LikedItem{item("1", "a"), item("2", "b")}

	first, err := e.Reconcile(ctx, "u1", batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	second, err := e.Reconcile(ctx, "u1", batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, second.Imported())

	n, err := s.CountItems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReconcile_KeepsCategoriesAcrossReimport(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	_, err := e.EnsureDefaults(ctx, "u1")
	require.NoError(t, err)
	cats, err := s.ListCategories(ctx, "u1")
	require.NoError(t, err)

	res, err := e.Reconcile(ctx, "u1", []*domain.LikedItem{item("1", "first")})
	require.NoError(t, err)
	_, err = s.SetItemCategories(ctx, "u1", res.Items[0].ID, []string{cats[0].ID})
	require.NoError(t, err)

	// The feed never carries categories; an incoming record with some must not overwrite membership.
	incoming := item("1", "edited upstream")
	incoming.CategoryIDs = []string{"cat-bogus"}
	res, err = e.Reconcile(ctx, "u1", []*domain.LikedItem{incoming})
	require.NoError(t, err)

	assert.Equal(t, "edited upstream", res.Items[0].Content)
	assert.Equal(t, []string{cats[0].ID}, res.Items[0].CategoryIDs)
}

func TestReconcile_DropsAndCollapses(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	res, err := e.Reconcile(ctx, "u1", []*domain.LikedItem{
		item("1", "old"),
		item("", "no id"),
		nil,
		item("2", "b"),
		item("1", "new"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Dropped)
	assert.Equal(t, 2, res.Inserted)

	items, err := s.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].Content)
}

func TestReconcile_EmptyBatchSkipsStore(t *testing.T) {
	e := New(failingStore{}, logger.Discard())

	res, err := e.Reconcile(context.Background(), "u1", []*domain.LikedItem{item("", "x")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Empty(t, res.Items)
}

func TestReconcile_StorageFailure(t *testing.T) {
	e := New(failingStore{}, logger.Discard())

	_, err := e.Reconcile(context.Background(), "u1", []*domain.LikedItem{item("1", "x")})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrStorage))
	assert.ErrorIs(t, err, errDiskFull)
}

func TestReconcile_RequiresOwner(t *testing.T) {
	e, _ := setupEngine(t)

	_, err := e.Reconcile(context.Background(), "", []*domain.LikedItem{item("1", "x")})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestEnsureDefaults(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	seeded, err := e.EnsureDefaults(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = e.EnsureDefaults(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, seeded, "second call is a no-op")

	cats, err := s.ListCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cats, len(domain.DefaultCategories))

	colors := map[string]string{}
	for _, c := range cats {
		colors[c.Name] = c.Color
	}
	assert.Equal(t, "#8b5cf6", colors["AI"])
	assert.Equal(t, "#6366f1", colors["Programming"])

	prefs, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, prefs.AutoCategorizationEnabled)
}

func TestEnsureDefaults_SelfHeals(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()

	_, err := e.EnsureDefaults(ctx, "u1")
	require.NoError(t, err)

	cats, err := s.ListCategories(ctx, "u1")
	require.NoError(t, err)
	for _, c := range cats {
		require.NoError(t, s.DeleteCategory(ctx, "u1", c.ID))
	}

	seeded, err := e.EnsureDefaults(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, seeded, "an owner left with zero categories is seeded again")
}

var errDiskFull = errors.New("disk full")

// failingStore fails every write. Unused methods panic through the nil embedded interface.
type failingStore struct {
	store.Store
}

func (failingStore) UpsertItems(context.Context, string, []*domain.LikedItem) (*store.UpsertResult, error) {
	return nil, errDiskFull
}
