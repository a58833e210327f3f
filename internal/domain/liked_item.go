package domain

import (
	"slices"
	"time"
)

// Author is the snapshot of a post's author taken at import time.
// It is not refreshed when the profile changes upstream.
type Author struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Placeholder author values used when the feed omits the author.
const (
	UnknownAuthorHandle      = "unknown"
	UnknownAuthorDisplayName = "Unknown User"
	PlaceholderAvatarURL     = "/placeholder.svg?height=32&width=32"
)

// UnknownAuthor returns the sentinel author for records without author data.
func UnknownAuthor() Author {
	return Author{
		Handle:      UnknownAuthorHandle,
		DisplayName: UnknownAuthorDisplayName,
		AvatarURL:   PlaceholderAvatarURL,
	}
}

// Metrics are engagement counters captured at import time. Never negative.
type Metrics struct {
	LikeCount   int `json:"like_count"`
	RepostCount int `json:"repost_count"`
	ReplyCount  int `json:"reply_count"`
}

// LikedItem is one post the owner liked on the source platform.
//
// ExternalID is the identity: (OwnerID, ExternalID) is unique and converges to
// a single stored item however many times it is reconciled. CategoryIDs are
// owned by explicit assignment and never changed by reconciliation.
type LikedItem struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	ExternalID  string    `json:"external_id"`
	Content     string    `json:"content"`
	Author      Author    `json:"author"`
	LikedAt     time.Time `json:"liked_at"`
	Metrics     Metrics   `json:"metrics"`
	HasMedia    bool      `json:"has_media"`
	CategoryIDs []string  `json:"category_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasCategory reports whether the item is tagged with categoryID.
func (l *LikedItem) HasCategory(categoryID string) bool {
	return slices.Contains(l.CategoryIDs, categoryID)
}

// HasAnyCategory reports whether the item carries at least one of ids.
// An empty ids set matches every item.
func (l *LikedItem) HasAnyCategory(ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if l.HasCategory(id) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate results without touching shared state.
func (l *LikedItem) Clone() *LikedItem {
	c := *l
	c.CategoryIDs = slices.Clone(l.CategoryIDs)
	return &c
}
