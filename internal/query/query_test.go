package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/domain"
)

func mk(ext, content, name string, likes int, cats ...string) *domain.LikedItem {
	return &domain.LikedItem{
		ExternalID:  ext,
		Content:     content,
		Author:      domain.Author{Handle: "h_" + ext, DisplayName: name},
		Metrics:     domain.Metrics{LikeCount: likes},
		CategoryIDs: cats,
	}
}

func externalIDs(items []*domain.LikedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ExternalID
	}
	return out
}

func fixture() []*domain.LikedItem {
	return []*domain.LikedItem{
		mk("9", "Design systems at scale", "Zed", 5, "cat-design"),
		mk("10", "Prompting tricks for LLMs", "adam", 50, "cat-ai"),
		mk("100", "Both worlds: AI for design", "Émile", 50, "cat-ai", "cat-design"),
		mk("11", "Funny cat video", "Bob", 0),
	}
}

func TestApply_SortRecentIsNumeric(t *testing.T) {
	e := New("en")

	got := e.Apply(fixture(), Params{})
	assert.Equal(t, []string{"100", "11", "10", "9"}, externalIDs(got))

	got = e.Apply(fixture(), Params{Sort: SortOldest})
	assert.Equal(t, []string{"9", "10", "11", "100"}, externalIDs(got))
}

func TestApply_SortPopularTiesBreakOnExternalID(t *testing.T) {
	got := New("en").Apply(fixture(), Params{Sort: SortPopular})
	assert.Equal(t, []string{"10", "100", "9", "11"}, externalIDs(got))
}

func TestApply_SortAuthorUsesCollation(t *testing.T) {
	got := New("en").Apply(fixture(), Params{Sort: SortAuthor})

	names := make([]string, len(got))
	for i, it := range got {
		names[i] = it.Author.DisplayName
	}
	assert.Equal(t, []string{"adam", "Bob", "Émile", "Zed"}, names)
}

func TestApply_Search(t *testing.T) {
	e := New("en")

	tests := []struct {
		name   string
		search string
		want   []string
	}{
		{name: "content, case insensitive", search: "DESIGN", want: []string{"100", "9"}},
		{name: "display name", search: "émile", want: []string{"100"}},
		{name: "handle", search: "h_11", want: []string{"11"}},
		{name: "trimmed", search: "  llms ", want: []string{"10"}},
		{name: "blank passes everything", search: "   ", want: []string{"100", "11", "10", "9"}},
		{name: "no match", search: "kubernetes", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Apply(fixture(), Params{Search: tt.search})
			assert.Equal(t, tt.want, externalIDs(got))
		})
	}
}

func TestApply_CategoryFilterIsOr(t *testing.T) {
	e := New("en")

	got := e.Apply(fixture(), Params{CategoryIDs: []string{"cat-ai"}})
	assert.Equal(t, []string{"100", "10"}, externalIDs(got))

	got = e.Apply(fixture(), Params{CategoryIDs: []string{"cat-ai", "cat-design"}})
	assert.Equal(t, []string{"100", "10", "9"}, externalIDs(got))

	got = e.Apply(fixture(), Params{CategoryIDs: []string{"cat-ai"}, Search: "design"})
	assert.Equal(t, []string{"100"}, externalIDs(got))
}

func TestApply_Paging(t *testing.T) {
	e := New("en")

	assert.Equal(t, []string{"100", "11"}, externalIDs(e.Apply(fixture(), Params{Limit: 2})))
	assert.Equal(t, []string{"10", "9"}, externalIDs(e.Apply(fixture(), Params{Limit: 2, Offset: 2})))
	assert.Empty(t, e.Apply(fixture(), Params{Offset: 10}))
	assert.Len(t, e.Apply(fixture(), Params{Offset: -1}), 4)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	items := fixture()
	before := externalIDs(items)

	New("en").Apply(items, Params{Sort: SortPopular})

	assert.Equal(t, before, externalIDs(items))
}

func TestApply_IsDeterministicUnderPermutation(t *testing.T) {
	e := New("en")
	items := fixture()
	reversed := []*domain.LikedItem{items[3], items[2], items[1], items[0]}

	for _, sort := range []Sort{SortRecent, SortOldest, SortPopular, SortAuthor} {
		a := e.Apply(items, Params{Sort: sort})
		b := e.Apply(reversed, Params{Sort: sort})
		assert.Equal(t, externalIDs(a), externalIDs(b), "sort %s", sort)
	}
}

func TestApply_FilterAndSortCommute(t *testing.T) {
	e := New("en")
	p := Params{Search: "design", Sort: SortPopular}

	filterFirst := e.Sort(Filter(fixture(), p), p.Sort)

	var sortFirst []*domain.LikedItem
	for _, it := range e.Sort(fixture(), p.Sort) {
		if Matches(it, "design") {
			sortFirst = append(sortFirst, it)
		}
	}
	assert.Equal(t, externalIDs(filterFirst), externalIDs(sortFirst))
}

func TestParseSort(t *testing.T) {
	s, err := ParseSort("")
	require.NoError(t, err)
	assert.Equal(t, SortRecent, s)

	s, err = ParseSort("author")
	require.NoError(t, err)
	assert.Equal(t, SortAuthor, s)

	_, err = ParseSort("random")
	assert.Error(t, err)
}

func TestCompareIdentity(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"9", "10", -1},
		{"1790000000000000002", "1790000000000000001", 1},
		{"007", "7", -1},
		{"abc", "abd", -1},
		{"10", "9a", -1},
		{"42", "42", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareIdentity(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestNew_BadLocaleFallsBack(t *testing.T) {
	e := New("not a locale!!")
	got := e.Apply(fixture(), Params{Sort: SortAuthor})
	assert.Len(t, got, 4)
}
