package domain

import (
	"slices"
	"time"
)

// Preferences holds per-owner settings for categorization.
type Preferences struct {
	OwnerID                   string     `json:"owner_id"`
	AutoCategorizationEnabled bool       `json:"auto_categorization_enabled"`
	DefaultCategories         []string   `json:"default_categories"`
	LastSyncAt                *time.Time `json:"last_sync_at,omitempty"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// NewPreferences creates preferences with the product defaults.
func NewPreferences(ownerID string) *Preferences {
	return &Preferences{
		OwnerID:                   ownerID,
		AutoCategorizationEnabled: true,
		DefaultCategories:         []string{"Product Design", "AI", "Programming"},
		UpdatedAt:                 time.Now(),
	}
}

// Clone returns a deep copy.
func (p *Preferences) Clone() *Preferences {
	c := *p
	c.DefaultCategories = slices.Clone(p.DefaultCategories)
	if p.LastSyncAt != nil {
		t := *p.LastSyncAt
		c.LastSyncAt = &t
	}
	return &c
}
