package domain

import (
	"cmp"
	"slices"
	"time"
)

// DefaultCategoryColor is used when a category is created without a color.
const DefaultCategoryColor = "#6b7280"

// Category is a user-defined label. Name is unique per owner, compared byte for byte.
type Category struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch records a change made at at.
func (c *Category) Touch(at time.Time) {
	c.UpdatedAt = at.UTC()
}

// CategoryStat is a category with its live item count.
type CategoryStat struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// SortCategoryStats orders stats by count descending, then name ascending.
func SortCategoryStats(stats []CategoryStat) {
	slices.SortFunc(stats, func(a, b CategoryStat) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// CategorySeed is one entry of the default category set.
type CategorySeed struct {
	Name  string
	Color string
}

// DefaultCategories is the set seeded for an owner with no categories.
var DefaultCategories = []CategorySeed{
	{Name: "Product Design", Color: "#3b82f6"},
	{Name: "AI", Color: "#8b5cf6"},
	{Name: "Growth", Color: "#10b981"},
	{Name: "Marketing", Color: "#f59e0b"},
	{Name: "Inspiration", Color: "#ef4444"},
	{Name: "UI/UX", Color: "#06b6d4"},
	{Name: "Funny", Color: "#84cc16"},
	{Name: "Programming", Color: "#6366f1"},
	{Name: "Research", Color: "#ec4899"},
}
