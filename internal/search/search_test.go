package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/query"
)

// setupTestIndex creates a temporary search index for testing.
func setupTestIndex(t *testing.T) (*SearchIndex, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "search-test-*")
	require.NoError(t, err)

	index, err := NewSearchIndex(Options{
		DataPath: tmpDir,
		Logger:   nil,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = index.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return index, cleanup
}

func item(id, owner, content, handle, name string) *domain.LikedItem {
	return &domain.LikedItem{
		ID:         id,
		OwnerID:    owner,
		ExternalID: "ext-" + id,
		Content:    content,
		Author:     domain.Author{Handle: handle, DisplayName: name},
	}
}

func fixtureItems() []*domain.LikedItem {
	return []*domain.LikedItem{
		item("like-1", "u1", "New Figma plugins for Product Design", "designer", "Dana Design"),
		item("like-2", "u1", "Shipping Go generics in production", "gopher", "Gopher Gary"),
		item("like-3", "u1", "Nothing to see here", "figmafan", "Fig Fan"),
		item("like-4", "u1", "GPT-5 rumors and AI hype", "ainews", "AI News"),
		item("like-5", "u2", "Figma config tips", "other", "Other Owner"),
	}
}

func TestNewSearchIndex(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
	assert.True(t, index.Healthy())
}

func TestSearchIndex_IndexItems(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems(fixtureItems()))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)

	// Re-indexing the same ids replaces documents instead of adding them.
	require.NoError(t, index.IndexItems(fixtureItems()[:2]))
	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)
}

func TestSearchIndex_Candidates(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems(fixtureItems()))
	ctx := context.Background()

	tests := []struct {
		name string
		term string
		want []string
	}{
		{name: "content substring", term: "plugins", want: []string{"like-1"}},
		{name: "handle substring", term: "FIGMA", want: []string{"like-1", "like-3"}},
		{name: "display name", term: "gary", want: []string{"like-2"}},
		{name: "mid-word", term: "eneric", want: []string{"like-2"}},
		{name: "with spaces", term: "product design", want: []string{"like-1"}},
		{name: "punctuation", term: "gpt-5", want: []string{"like-4"}},
		{name: "no match", term: "kubernetes", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := index.Candidates(ctx, "u1", tt.term)
			require.NoError(t, err)
			slices.Sort(got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchIndex_CandidatesAgreeWithExactMatch(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	items := fixtureItems()
	require.NoError(t, index.IndexItems(items))

	for _, term := range []string{"fig", "a", "design", "ai", "news", "go"} {
		got, err := index.Candidates(context.Background(), "u1", term)
		require.NoError(t, err)

		var want []string
		for _, it := range items {
			if it.OwnerID == "u1" && query.Matches(it, term) {
				want = append(want, it.ID)
			}
		}
		slices.Sort(got)
		slices.Sort(want)
		assert.Equal(t, want, got, "term %q", term)
	}
}

func TestSearchIndex_CandidatesAreOwnerScoped(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems(fixtureItems()))

	got, err := index.Candidates(context.Background(), "u2", "figma")
	require.NoError(t, err)
	assert.Equal(t, []string{"like-5"}, got)

	got, err = index.Candidates(context.Background(), "nobody", "figma")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchIndex_CandidatesRejectsBlankTerm(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	for _, term := range []string{"", "   ", "\t"} {
		_, err := index.Candidates(context.Background(), "u1", term)
		assert.ErrorIs(t, err, ErrUnsupportedTerm, "term %q", term)
	}
}

func TestSearchIndex_CandidatesMatchAcrossLines(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems([]*domain.LikedItem{
		item("like-1", "u1", "Thread 1/2\nFigma tips", "threads", "Thread Writer"),
		item("like-2", "u1", "line one\r\nline two\n\nend", "h", "Multi\nLine"),
	}))
	ctx := context.Background()

	for term, want := range map[string][]string{
		"figma":      {"like-1"},
		"1/2\nfigma": {"like-1"},
		"two":        {"like-2"},
		"end":        {"like-2"},
		"line":       {"like-2"},
	} {
		got, err := index.Candidates(ctx, "u1", term)
		require.NoError(t, err, term)
		assert.Equal(t, want, got, "term %q", term)
	}
}

func TestSearchIndex_CandidatesTreatMetacharactersLiterally(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems([]*domain.LikedItem{
		item("like-1", "u1", "what? really? (a+b)*c", "h", "H"),
		item("like-2", "u1", "what really ab c", "h", "H"),
	}))

	for _, term := range []string{"really?", "(a+b)*c", "what?", `\`} {
		got, err := index.Candidates(context.Background(), "u1", term)
		require.NoError(t, err, term)
		if term == `\` {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, []string{"like-1"}, got, "term %q", term)
	}
}

func TestSearchIndex_CandidatesPaginates(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	items := make([]*domain.LikedItem, 0, candidatePageSize+25)
	for i := range candidatePageSize + 25 {
		items = append(items, item(fmt.Sprintf("like-%04d", i), "u1", "bulk liked post", "bulk", "Bulk"))
	}
	require.NoError(t, index.IndexItems(items))

	got, err := index.Candidates(context.Background(), "u1", "bulk")
	require.NoError(t, err)
	assert.Len(t, got, candidatePageSize+25)
}

func loadItems(items []*domain.LikedItem) func() ([]*domain.LikedItem, error) {
	return func() ([]*domain.LikedItem, error) { return items, nil }
}

func TestSearchIndex_Rebuild(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems(fixtureItems()))
	require.NoError(t, index.Rebuild(loadItems(fixtureItems()[:2])))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
	assert.True(t, index.Healthy())
}

func TestSearchIndex_RebuildLoadFailureStaysUnhealthy(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems(fixtureItems()))
	err := index.Rebuild(func() ([]*domain.LikedItem, error) {
		return nil, errors.New("store closed")
	})
	require.Error(t, err)

	assert.False(t, index.Healthy())
	_, err = index.Candidates(context.Background(), "u1", "figma")
	assert.ErrorIs(t, err, ErrUnhealthy)
}

func TestSearchIndex_InterruptedWriteRequiresRebuild(t *testing.T) {
	tmpDir := t.TempDir()

	index, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	require.NoError(t, index.IndexItems(fixtureItems()[:2]))

	// The store commit happens here; the process stops before indexing.
	_, err = index.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, index.Close())

	reopened, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	assert.False(t, reopened.Healthy())
	assert.True(t, reopened.NeedsRebuild(2), "document count matches but a write was lost")

	_, err = reopened.Candidates(context.Background(), "u1", "figma")
	assert.ErrorIs(t, err, ErrUnhealthy)

	require.NoError(t, reopened.Rebuild(loadItems(fixtureItems())))
	assert.True(t, reopened.Healthy())
	got, err := reopened.Candidates(context.Background(), "u1", "figma")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, reopened.Close())

	again, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	defer again.Close()
	assert.True(t, again.Healthy())
	assert.False(t, again.NeedsRebuild(5))
}

func TestSearchIndex_FinishedWritesClearMarker(t *testing.T) {
	tmpDir := t.TempDir()

	index, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)

	endA, err := index.BeginWrite()
	require.NoError(t, err)
	endB, err := index.BeginWrite()
	require.NoError(t, err)

	require.NoError(t, index.IndexItems(fixtureItems()))
	endA()
	endA()
	assert.FileExists(t, filepath.Join(tmpDir, "search.dirty"), "second writer still pending")

	endB()
	assert.NoFileExists(t, filepath.Join(tmpDir, "search.dirty"))
	require.NoError(t, index.Close())

	reopened, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Healthy())
}

func TestSearchIndex_NeedsRebuildOnCountMismatch(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	assert.False(t, index.NeedsRebuild(0))
	assert.True(t, index.NeedsRebuild(3))

	require.NoError(t, index.IndexItems(fixtureItems()))
	assert.False(t, index.NeedsRebuild(5))
	assert.True(t, index.NeedsRebuild(6))
}

func TestSearchIndex_InvalidateStopsCandidates(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	require.NoError(t, index.IndexItems(fixtureItems()))
	index.Invalidate()

	_, err := index.Candidates(context.Background(), "u1", "figma")
	assert.ErrorIs(t, err, ErrUnhealthy)
}

func TestSearchIndex_Persistence(t *testing.T) {
	tmpDir := t.TempDir()

	index, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	require.NoError(t, index.IndexItems(fixtureItems()))
	require.NoError(t, index.Close())

	reopened, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)
}

func TestSearchIndex_MappingVersionMismatchStartsEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	index, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	require.NoError(t, index.IndexItems(fixtureItems()))
	require.NoError(t, index.Close())

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "search.version"), []byte("stale"), 0o644))

	reopened, err := NewSearchIndex(Options{DataPath: tmpDir})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	version, err := os.ReadFile(filepath.Join(tmpDir, "search.version"))
	require.NoError(t, err)
	assert.Equal(t, mappingVersion, string(version))
}

func TestItemToDocument(t *testing.T) {
	doc := ItemToDocument(item("like-9", "u1", "Hello WORLD", "SomeOne", "Some One"))

	assert.Equal(t, "like-9", doc.ID)
	assert.Equal(t, "u1", doc.OwnerID)
	assert.Equal(t, "hello world", doc.Content)
	assert.Equal(t, "someone", doc.Handle)
	assert.Equal(t, "some one", doc.DisplayName)
	assert.Equal(t, "ext-like-9", doc.ToMap()["external_id"])
}
