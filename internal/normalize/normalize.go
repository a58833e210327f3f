// Package normalize turns raw feed records into LikedItems.
//
// Normalization is pure: no I/O, no clock reads. The caller passes the
// observation time used when a record carries no timestamp.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/feed"
)

// Reasons a record can be rejected.
var (
	ErrMissingExternalID = errors.New("record has no id")
	ErrInvalidTimestamp  = errors.New("record has an unparsable created_at")
)

// Skipped describes a record Page rejected.
type Skipped struct {
	ExternalID string
	Reason     error
}

// Result is the outcome of normalizing one page.
type Result struct {
	Items   []*domain.LikedItem
	Skipped []Skipped
}

// Item normalizes a single raw record. users maps author ids to accounts.
// The returned item has no owner, internal id, or categories.
func Item(raw feed.RawItem, users map[string]feed.User, observedAt time.Time) (*domain.LikedItem, error) {
	externalID := strings.TrimSpace(raw.ID)
	if externalID == "" {
		return nil, ErrMissingExternalID
	}

	likedAt := observedAt.UTC()
	if raw.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw.CreatedAt)
		}
		likedAt = t.UTC()
	}

	item := &domain.LikedItem{
		ExternalID:  externalID,
		Content:     sanitizeString(raw.Text),
		Author:      resolveAuthor(raw.AuthorID, users),
		LikedAt:     likedAt,
		HasMedia:    raw.Attachments != nil && len(raw.Attachments.MediaKeys) > 0,
		CategoryIDs: []string{},
	}

	if m := raw.PublicMetrics; m != nil {
		item.Metrics = domain.Metrics{
			LikeCount:   max(m.LikeCount, 0),
			RepostCount: max(m.RetweetCount, 0),
			ReplyCount:  max(m.ReplyCount, 0),
		}
	}

	return item, nil
}

// Page normalizes every record of a page. Bad records are skipped and
// logged; Page itself never fails.
func Page(page *feed.Page, observedAt time.Time, logger *slog.Logger) Result {
	var res Result
	if page == nil || len(page.Items) == 0 {
		return res
	}

	users := page.Includes.UsersByID()
	res.Items = make([]*domain.LikedItem, 0, len(page.Items))

	for _, raw := range page.Items {
		item, err := Item(raw, users, observedAt)
		if err != nil {
			logger.Warn("skipping feed record",
				"external_id", raw.ID,
				"error", err,
			)
			res.Skipped = append(res.Skipped, Skipped{ExternalID: raw.ID, Reason: err})
			continue
		}
		res.Items = append(res.Items, item)
	}

	return res
}

func resolveAuthor(authorID string, users map[string]feed.User) domain.Author {
	author := domain.UnknownAuthor()

	u, ok := users[authorID]
	if !ok || authorID == "" {
		return author
	}
	if u.Username != "" {
		author.Handle = sanitizeString(u.Username)
	}
	if u.Name != "" {
		author.DisplayName = sanitizeString(u.Name)
	}
	if u.ProfileImageURL != "" {
		author.AvatarURL = u.ProfileImageURL
	}
	return author
}

// sanitizeString removes null bytes, which SQLite text columns and some
// JSON consumers reject.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
