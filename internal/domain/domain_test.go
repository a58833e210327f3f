package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLikedItem_HasAnyCategory(t *testing.T) {
	item := &LikedItem{CategoryIDs: []string{"cat-a", "cat-b"}}

	assert.True(t, item.HasAnyCategory(nil))
	assert.True(t, item.HasAnyCategory([]string{"cat-z", "cat-b"}))
	assert.False(t, item.HasAnyCategory([]string{"cat-z"}))
	assert.False(t, (&LikedItem{}).HasAnyCategory([]string{"cat-a"}))
}

func TestLikedItem_CloneIsDeep(t *testing.T) {
	item := &LikedItem{ExternalID: "42", CategoryIDs: []string{"cat-a"}}
	c := item.Clone()
	c.CategoryIDs[0] = "cat-x"

	assert.Equal(t, "cat-a", item.CategoryIDs[0])
}

func TestSortCategoryStats(t *testing.T) {
	stats := []CategoryStat{
		{ID: "1", Name: "Research", Count: 1},
		{ID: "2", Name: "AI", Count: 3},
		{ID: "3", Name: "Funny", Count: 1},
		{ID: "4", Name: "Growth", Count: 0},
	}

	SortCategoryStats(stats)

	names := make([]string, len(stats))
	for i, s := range stats {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"AI", "Funny", "Research", "Growth"}, names)
}

func TestDefaults(t *testing.T) {
	assert.Len(t, DefaultCategories, 9)

	seen := map[string]bool{}
	for _, seed := range DefaultCategories {
		assert.False(t, seen[seed.Name], "duplicate default %q", seed.Name)
		seen[seed.Name] = true
		assert.Regexp(t, `^#[0-9a-f]{6}$`, seed.Color)
	}

	prefs := NewPreferences("u1")
	assert.True(t, prefs.AutoCategorizationEnabled)
	assert.Equal(t, []string{"Product Design", "AI", "Programming"}, prefs.DefaultCategories)
	for _, name := range prefs.DefaultCategories {
		assert.True(t, seen[name], "default preference %q is not a default category", name)
	}

	author := UnknownAuthor()
	assert.Equal(t, "unknown", author.Handle)
	assert.Equal(t, "Unknown User", author.DisplayName)
}

func TestCategory_Touch(t *testing.T) {
	c := &Category{}
	at := time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60))

	c.Touch(at)
	assert.True(t, c.UpdatedAt.Equal(at))
	assert.Equal(t, time.UTC, c.UpdatedAt.Location())
}
