// Package query filters, sorts and pages liked items in memory.
//
// The engine is stateless apart from its collation locale and never touches
// storage; callers load the owner's items and hand them over.
package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/likeshelf/likeshelf-server/internal/domain"
)

// Sort selects the result order.
type Sort string

// Supported sort orders.
const (
	SortRecent  Sort = "recent"
	SortOldest  Sort = "oldest"
	SortPopular Sort = "popular"
	SortAuthor  Sort = "author"
)

// ParseSort validates a sort key. The empty string selects SortRecent.
func ParseSort(s string) (Sort, error) {
	switch Sort(s) {
	case "":
		return SortRecent, nil
	case SortRecent, SortOldest, SortPopular, SortAuthor:
		return Sort(s), nil
	default:
		return "", fmt.Errorf("unknown sort %q", s)
	}
}

// Params describes one query. A zero Limit means no limit.
type Params struct {
	Search      string
	CategoryIDs []string
	Sort        Sort
	Limit       int
	Offset      int
}

// Engine evaluates queries.
type Engine struct {
	tag language.Tag
}

// New creates an engine that orders author names by the given BCP 47 locale.
// An unparsable locale falls back to English.
func New(locale string) *Engine {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Engine{tag: tag}
}

// Apply filters, sorts and pages items. The input slice is not modified.
func (e *Engine) Apply(items []*domain.LikedItem, p Params) []*domain.LikedItem {
	return Page(e.Sort(Filter(items, p), p.Sort), p.Limit, p.Offset)
}

// Filter keeps items matching the search term and any of the category ids.
func Filter(items []*domain.LikedItem, p Params) []*domain.LikedItem {
	term := strings.ToLower(strings.TrimSpace(p.Search))

	out := make([]*domain.LikedItem, 0, len(items))
	for _, it := range items {
		if !it.HasAnyCategory(p.CategoryIDs) {
			continue
		}
		if term != "" && !Matches(it, term) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Matches reports whether a lower-cased term occurs in the item's content,
// author handle or display name, ignoring case.
func Matches(it *domain.LikedItem, term string) bool {
	return strings.Contains(strings.ToLower(it.Content), term) ||
		strings.Contains(strings.ToLower(it.Author.Handle), term) ||
		strings.Contains(strings.ToLower(it.Author.DisplayName), term)
}

// Sort returns a sorted copy of items. Ties fall back to external id
// ascending, so the order is total for any input.
func (e *Engine) Sort(items []*domain.LikedItem, by Sort) []*domain.LikedItem {
	out := slices.Clone(items)

	var primary func(a, b *domain.LikedItem) int
	switch by {
	case SortOldest:
		primary = func(a, b *domain.LikedItem) int {
			return CompareIdentity(a.ExternalID, b.ExternalID)
		}
	case SortPopular:
		primary = func(a, b *domain.LikedItem) int {
			return cmp.Compare(b.Metrics.LikeCount, a.Metrics.LikeCount)
		}
	case SortAuthor:
		// Collators keep internal buffers and are not safe to share.
		col := collate.New(e.tag)
		primary = func(a, b *domain.LikedItem) int {
			return col.CompareString(a.Author.DisplayName, b.Author.DisplayName)
		}
	default:
		primary = func(a, b *domain.LikedItem) int {
			return CompareIdentity(b.ExternalID, a.ExternalID)
		}
	}

	slices.SortFunc(out, func(a, b *domain.LikedItem) int {
		if c := primary(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ExternalID, b.ExternalID)
	})
	return out
}

// Page applies offset and limit. A non-positive limit returns everything after offset.
func Page(items []*domain.LikedItem, limit, offset int) []*domain.LikedItem {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []*domain.LikedItem{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// CompareIdentity orders external ids. Platform ids are decimal snowflakes
// that grow with time, so two all-digit ids compare numerically; anything
// else compares as plain strings.
func CompareIdentity(a, b string) int {
	if isDigits(a) && isDigits(b) {
		na := strings.TrimLeft(a, "0")
		nb := strings.TrimLeft(b, "0")
		if c := cmp.Compare(len(na), len(nb)); c != 0 {
			return c
		}
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
	}
	return cmp.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
