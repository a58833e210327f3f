// Package storetest is a conformance suite for store.Store implementations.
//
// Each engine's tests call Run with a constructor that returns a fresh,
// empty store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/id"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// Factory returns a new empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UpsertIsIdempotent", testUpsertIsIdempotent},
		{"UpsertPreservesCategories", testUpsertPreservesCategories},
		{"UpsertCollapsesDuplicatesInBatch", testUpsertCollapsesDuplicatesInBatch},
		{"UpsertIsAtomic", testUpsertIsAtomic},
		{"OwnersAreIsolated", testOwnersAreIsolated},
		{"OwnerIDsWithColonsDoNotCollide", testOwnerIDsWithColons},
		{"GetItemsByIDs", testGetItemsByIDs},
		{"CreateCategoryDuplicateName", testCreateCategoryDuplicateName},
		{"UpdateCategory", testUpdateCategory},
		{"SetItemCategoriesReplaces", testSetItemCategoriesReplaces},
		{"SetItemCategoriesRejectsForeignCategory", testSetItemCategoriesRejectsForeignCategory},
		{"DeleteCategoryCascades", testDeleteCategoryCascades},
		{"CategoryStatsOrder", testCategoryStatsOrder},
		{"ConcurrentAssignmentsKeepCountsConsistent", testConcurrentAssignments},
		{"SeedCategories", testSeedCategories},
		{"SyncCursor", testSyncCursor},
		{"Preferences", testPreferences},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newItem(externalID string) *domain.LikedItem {
	return &domain.LikedItem{
		ID:          id.MustGenerate(id.PrefixLike),
		ExternalID:  externalID,
		Content:     "post " + externalID,
		Author:      domain.Author{Handle: "h" + externalID, DisplayName: "Name " + externalID, AvatarURL: domain.PlaceholderAvatarURL},
		LikedAt:     baseTime,
		Metrics:     domain.Metrics{LikeCount: 1},
		CategoryIDs: []string{},
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func newCategory(ownerID, name string) *domain.Category {
	return &domain.Category{
		ID:        id.MustGenerate(id.PrefixCategory),
		OwnerID:   ownerID,
		Name:      name,
		Color:     domain.DefaultCategoryColor,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func mustUpsert(t *testing.T, s store.Store, ownerID string, items ...*domain.LikedItem) *store.UpsertResult {
	t.Helper()
	res, err := s.UpsertItems(context.Background(), ownerID, items)
	require.NoError(t, err)
	return res
}

func mustCreateCategory(t *testing.T, s store.Store, ownerID, name string) *domain.Category {
	t.Helper()
	c := newCategory(ownerID, name)
	require.NoError(t, s.CreateCategory(context.Background(), c))
	return c
}

func countFor(stats []domain.CategoryStat, categoryID string) int {
	for _, st := range stats {
		if st.ID == categoryID {
			return st.Count
		}
	}
	return -1
}

func testUpsertIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := mustUpsert(t, s, "u1", newItem("100"), newItem("200"))
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Updated)
	require.Len(t, first.Items, 2)

	again := newItem("100")
	again.Content = "edited"
	again.CreatedAt = baseTime.Add(2 * time.Hour)
	again.UpdatedAt = baseTime.Add(time.Hour)
	second := mustUpsert(t, s, "u1", again, newItem("200"))
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated)

	n, err := s.CountItems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored := second.Items[0]
	assert.Equal(t, first.Items[0].ID, stored.ID, "internal id is stable")
	assert.True(t, stored.CreatedAt.Equal(baseTime), "created_at is stable")
	assert.Equal(t, "edited", stored.Content)
	assert.Equal(t, "u1", stored.OwnerID)
}

func testUpsertPreservesCategories(t *testing.T, s store.Store) {
	ctx := context.Background()

	res := mustUpsert(t, s, "u1", newItem("100"))
	cat := mustCreateCategory(t, s, "u1", "AI")
	_, err := s.SetItemCategories(ctx, "u1", res.Items[0].ID, []string{cat.ID})
	require.NoError(t, err)

	refreshed := newItem("100")
	refreshed.Metrics.LikeCount = 99
	res = mustUpsert(t, s, "u1", refreshed)

	assert.Equal(t, []string{cat.ID}, res.Items[0].CategoryIDs)
	assert.Equal(t, 99, res.Items[0].Metrics.LikeCount)

	stats, err := s.CategoryStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, countFor(stats, cat.ID))
}

func testUpsertCollapsesDuplicatesInBatch(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := newItem("100")
	b := newItem("100")
	b.Content = "later"
	mustUpsert(t, s, "u1", a, b)

	items, err := s.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "later", items[0].Content)
}

func testUpsertIsAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()

	bad := newItem("")
	_, err := s.UpsertItems(ctx, "u1", []*domain.LikedItem{newItem("1"), bad, newItem("3")})
	require.Error(t, err)

	n, err := s.CountItems(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing of a failed batch is committed")
}

func testOwnersAreIsolated(t *testing.T, s store.Store) {
	ctx := context.Background()

	r1 := mustUpsert(t, s, "u1", newItem("100"))
	r2 := mustUpsert(t, s, "u2", newItem("100"))
	assert.Equal(t, 1, r2.Inserted, "same external id under another owner is a new item")
	assert.NotEqual(t, r1.Items[0].ID, r2.Items[0].ID)

	_, err := s.GetItem(ctx, "u2", r1.Items[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetItem(ctx, "u1", r1.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.ExternalID)

	all, err := s.ListAllItems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testOwnerIDsWithColons(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := newItem("b:c")
	first.Content = "owned by a"
	second := newItem("c")
	second.Content = "owned by a:b"

	r1 := mustUpsert(t, s, "a", first)
	r2 := mustUpsert(t, s, "a:b", second)
	assert.Equal(t, 1, r1.Inserted)
	assert.Equal(t, 1, r2.Inserted)
	assert.Equal(t, 0, r2.Updated)

	mine, err := s.ListItems(ctx, "a")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "owned by a", mine[0].Content)

	theirs, err := s.ListItems(ctx, "a:b")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "owned by a:b", theirs[0].Content)

	n, err := s.CountItems(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Categories of "a:b" must not block seeding "a" or claim its names.
	mustCreateCategory(t, s, "a:b", "x")
	created, err := s.SeedCategories(ctx, "a", []*domain.Category{newCategory("a", "b:x")})
	require.NoError(t, err)
	assert.True(t, created)

	cats, err := s.ListCategories(ctx, "a")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "b:x", cats[0].Name)

	cats, err = s.ListCategories(ctx, "a:b")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "x", cats[0].Name)
}

func testGetItemsByIDs(t *testing.T, s store.Store) {
	ctx := context.Background()

	res := mustUpsert(t, s, "u1", newItem("1"), newItem("2"), newItem("3"))
	other := mustUpsert(t, s, "u2", newItem("4"))

	ids := []string{res.Items[2].ID, "like-missing", other.Items[0].ID, res.Items[0].ID}
	items, err := s.GetItemsByIDs(ctx, "u1", ids)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "3", items[0].ExternalID)
	assert.Equal(t, "1", items[1].ExternalID)

	empty, err := s.GetItemsByIDs(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testCreateCategoryDuplicateName(t *testing.T, s store.Store) {
	ctx := context.Background()

	mustCreateCategory(t, s, "u1", "AI")

	err := s.CreateCategory(ctx, newCategory("u1", "AI"))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	assert.NoError(t, s.CreateCategory(ctx, newCategory("u1", "ai")), "names are case sensitive")
	assert.NoError(t, s.CreateCategory(ctx, newCategory("u2", "AI")), "names are unique per owner")

	cats, err := s.ListCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "AI", cats[0].Name)
	assert.Equal(t, "ai", cats[1].Name)
}

func testUpdateCategory(t *testing.T, s store.Store) {
	ctx := context.Background()

	ai := mustCreateCategory(t, s, "u1", "AI")
	mustCreateCategory(t, s, "u1", "Research")

	ai.Name = "Machine Learning"
	ai.Color = "#000000"
	require.NoError(t, s.UpdateCategory(ctx, ai))

	got, err := s.GetCategory(ctx, "u1", ai.ID)
	require.NoError(t, err)
	assert.Equal(t, "Machine Learning", got.Name)
	assert.Equal(t, "#000000", got.Color)

	ai.Name = "Research"
	assert.ErrorIs(t, s.UpdateCategory(ctx, ai), store.ErrAlreadyExists)

	foreign := *ai
	foreign.OwnerID = "u2"
	foreign.Name = "Elsewhere"
	assert.ErrorIs(t, s.UpdateCategory(ctx, &foreign), store.ErrNotFound)

	_, err = s.GetCategory(ctx, "u2", ai.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSetItemCategoriesReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()

	res := mustUpsert(t, s, "u1", newItem("1"))
	itemID := res.Items[0].ID
	a := mustCreateCategory(t, s, "u1", "A")
	b := mustCreateCategory(t, s, "u1", "B")

	item, err := s.SetItemCategories(ctx, "u1", itemID, []string{a.ID, b.ID, a.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, item.CategoryIDs)

	item, err = s.SetItemCategories(ctx, "u1", itemID, []string{b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, item.CategoryIDs)

	item, err = s.SetItemCategories(ctx, "u1", itemID, nil)
	require.NoError(t, err)
	assert.Empty(t, item.CategoryIDs)

	_, err = s.SetItemCategories(ctx, "u1", "like-missing", []string{a.ID})
	assert.ErrorIs(t, err, store.ErrNotFound)

	stats, err := s.CategoryStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, countFor(stats, a.ID))
	assert.Equal(t, 0, countFor(stats, b.ID))
}

func testSetItemCategoriesRejectsForeignCategory(t *testing.T, s store.Store) {
	ctx := context.Background()

	res := mustUpsert(t, s, "u1", newItem("1"))
	itemID := res.Items[0].ID
	mine := mustCreateCategory(t, s, "u1", "Mine")
	theirs := mustCreateCategory(t, s, "u2", "Theirs")

	_, err := s.SetItemCategories(ctx, "u1", itemID, []string{mine.ID})
	require.NoError(t, err)

	_, err = s.SetItemCategories(ctx, "u1", itemID, []string{theirs.ID})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.SetItemCategories(ctx, "u1", itemID, []string{"cat-missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	item, err := s.GetItem(ctx, "u1", itemID)
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, item.CategoryIDs, "rejected assignment changes nothing")

	_, err = s.SetItemCategories(ctx, "u2", itemID, []string{theirs.ID})
	assert.ErrorIs(t, err, store.ErrNotFound, "item belongs to another owner")
}

func testDeleteCategoryCascades(t *testing.T, s store.Store) {
	ctx := context.Background()

	res := mustUpsert(t, s, "u1", newItem("1"), newItem("2"))
	keep := mustCreateCategory(t, s, "u1", "Keep")
	drop := mustCreateCategory(t, s, "u1", "Drop")

	for _, it := range res.Items {
		_, err := s.SetItemCategories(ctx, "u1", it.ID, []string{keep.ID, drop.ID})
		require.NoError(t, err)
	}

	assert.ErrorIs(t, s.DeleteCategory(ctx, "u2", drop.ID), store.ErrNotFound)
	require.NoError(t, s.DeleteCategory(ctx, "u1", drop.ID))
	assert.ErrorIs(t, s.DeleteCategory(ctx, "u1", drop.ID), store.ErrNotFound)

	items, err := s.ListItems(ctx, "u1")
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, []string{keep.ID}, it.CategoryIDs)
	}

	stats, err := s.CategoryStats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, keep.ID, stats[0].ID)
	assert.Equal(t, 2, stats[0].Count)

	_, err = s.GetCategory(ctx, "u1", drop.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCategoryStatsOrder(t *testing.T, s store.Store) {
	ctx := context.Background()

	res := mustUpsert(t, s, "u1", newItem("1"), newItem("2"), newItem("3"))
	zeta := mustCreateCategory(t, s, "u1", "Zeta")
	alpha := mustCreateCategory(t, s, "u1", "Alpha")
	beta := mustCreateCategory(t, s, "u1", "Beta")
	mustCreateCategory(t, s, "u1", "Empty")

	assign := map[int][]string{
		0: {zeta.ID, alpha.ID, beta.ID},
		1: {zeta.ID, alpha.ID},
		2: {zeta.ID},
	}
	for i, ids := range assign {
		_, err := s.SetItemCategories(ctx, "u1", res.Items[i].ID, ids)
		require.NoError(t, err)
	}

	stats, err := s.CategoryStats(ctx, "u1")
	require.NoError(t, err)

	got := make([]string, len(stats))
	for i, st := range stats {
		got[i] = fmt.Sprintf("%s=%d", st.Name, st.Count)
	}
	assert.Equal(t, []string{"Zeta=3", "Alpha=2", "Beta=1", "Empty=0"}, got)
	assert.Equal(t, domain.DefaultCategoryColor, stats[0].Color)
}

func testConcurrentAssignments(t *testing.T, s store.Store) {
	ctx := context.Background()

	items := make([]*domain.LikedItem, 20)
	for i := range items {
		items[i] = newItem(fmt.Sprintf("%d", i+1))
	}
	res := mustUpsert(t, s, "u1", items...)
	a := mustCreateCategory(t, s, "u1", "A")
	b := mustCreateCategory(t, s, "u1", "B")

	var wg sync.WaitGroup
	errs := make(chan error, len(res.Items)*2)
	for i, it := range res.Items {
		wg.Add(1)
		go func(i int, itemID string) {
			defer wg.Done()
			ids := []string{a.ID}
			if i%2 == 0 {
				ids = append(ids, b.ID)
			}
			if _, err := s.SetItemCategories(ctx, "u1", itemID, ids); err != nil {
				errs <- err
			}
		}(i, it.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := s.CategoryStats(ctx, "u1")
	require.NoError(t, err)

	stored, err := s.ListItems(ctx, "u1")
	require.NoError(t, err)
	want := map[string]int{}
	for _, it := range stored {
		for _, c := range it.CategoryIDs {
			want[c]++
		}
	}
	assert.Equal(t, 20, countFor(stats, a.ID))
	assert.Equal(t, 10, countFor(stats, b.ID))
	assert.Equal(t, want[a.ID], countFor(stats, a.ID))
	assert.Equal(t, want[b.ID], countFor(stats, b.ID))
}

func testSeedCategories(t *testing.T, s store.Store) {
	ctx := context.Background()

	seed := func(owner string) []*domain.Category {
		return []*domain.Category{newCategory(owner, "One"), newCategory(owner, "Two")}
	}

	created, err := s.SeedCategories(ctx, "u1", seed("u1"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.SeedCategories(ctx, "u1", seed("u1"))
	require.NoError(t, err)
	assert.False(t, created)

	cats, err := s.ListCategories(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	mustCreateCategory(t, s, "u2", "Custom")
	created, err = s.SeedCategories(ctx, "u2", seed("u2"))
	require.NoError(t, err)
	assert.False(t, created, "owners with any category are not seeded")
}

func testSyncCursor(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSyncCursor(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveSyncCursor(ctx, &domain.SyncCursor{
		OwnerID:   "u1",
		NextToken: "tok-2",
		UpdatedAt: baseTime,
	}))

	got, err := s.GetSyncCursor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.NextToken)
	assert.Nil(t, got.LastSyncAt)

	done := baseTime.Add(time.Minute)
	require.NoError(t, s.SaveSyncCursor(ctx, &domain.SyncCursor{
		OwnerID:    "u1",
		LastSyncAt: &done,
		UpdatedAt:  done,
	}))

	got, err = s.GetSyncCursor(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.NextToken)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(done))
}

func testPreferences(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetPreferences(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	created, err := s.CreatePreferencesIfMissing(ctx, domain.NewPreferences("u1"))
	require.NoError(t, err)
	assert.True(t, created)

	custom := domain.NewPreferences("u1")
	custom.AutoCategorizationEnabled = false
	created, err = s.CreatePreferencesIfMissing(ctx, custom)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.AutoCategorizationEnabled)
	assert.Equal(t, []string{"Product Design", "AI", "Programming"}, got.DefaultCategories)

	got.AutoCategorizationEnabled = false
	got.DefaultCategories = []string{"Research"}
	require.NoError(t, s.SavePreferences(ctx, got))

	got, err = s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.AutoCategorizationEnabled)
	assert.Equal(t, []string{"Research"}, got.DefaultCategories)
}
