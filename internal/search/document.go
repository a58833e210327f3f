// Package search keeps a Bleve index of liked items used to narrow text
// searches to a candidate set.
//
// The index only proposes candidates. Callers run the exact match over the
// candidates, so results never depend on analyzer behaviour.
package search

import (
	"strings"

	"github.com/likeshelf/likeshelf-server/internal/domain"
)

// ItemDocument is the indexed form of a liked item.
// Text fields are lower-cased whole strings so a regexp query over them is a
// case-insensitive substring match.
type ItemDocument struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	ExternalID  string `json:"external_id"`
	Content     string `json:"content"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// ItemToDocument converts a liked item to its search document.
func ItemToDocument(item *domain.LikedItem) *ItemDocument {
	return &ItemDocument{
		ID:          item.ID,
		OwnerID:     item.OwnerID,
		ExternalID:  item.ExternalID,
		Content:     strings.ToLower(item.Content),
		Handle:      strings.ToLower(item.Author.Handle),
		DisplayName: strings.ToLower(item.Author.DisplayName),
	}
}

// ToMap converts the document to a map for Bleve indexing.
// Field names match the mapping exactly.
func (d *ItemDocument) ToMap() map[string]any {
	return map[string]any{
		"id":           d.ID,
		"owner_id":     d.OwnerID,
		"external_id":  d.ExternalID,
		"content":      d.Content,
		"handle":       d.Handle,
		"display_name": d.DisplayName,
	}
}
