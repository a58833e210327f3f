package domain

import "time"

// SyncCursor tracks where an owner's feed sync stands.
//
// NextToken is the page token to resume from after a sync stopped part way;
// it is empty once a sync has run to the end of the feed. LastSyncAt only
// moves when a sync completes.
type SyncCursor struct {
	OwnerID    string     `json:"owner_id"`
	NextToken  string     `json:"next_token,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewSyncCursor returns an empty cursor for ownerID.
func NewSyncCursor(ownerID string) *SyncCursor {
	return &SyncCursor{OwnerID: ownerID}
}
