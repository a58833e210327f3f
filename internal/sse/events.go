// Package sse implements Server-Sent Events for per-user sync progress and
// category changes.
package sse

import (
	"time"

	"github.com/likeshelf/likeshelf-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventSyncStarted is emitted when a sync run acquires the user's lock.
	EventSyncStarted EventType = "sync.started"
	// EventSyncProgress is emitted after each committed page.
	EventSyncProgress EventType = "sync.progress"
	// EventSyncCompleted is emitted when a run reaches the end of the feed or its page limit.
	EventSyncCompleted EventType = "sync.completed"
	// EventSyncFailed is emitted when a run stops on an error.
	EventSyncFailed EventType = "sync.failed"

	EventCategoryCreated EventType = "category.created"
	EventCategoryUpdated EventType = "category.updated"
	EventCategoryDeleted EventType = "category.deleted"

	// EventLikeCategoriesUpdated is emitted when an item's category set is replaced.
	EventLikeCategoriesUpdated EventType = "like.categories_updated"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// UserID restricts delivery to one user's connections.
	// Empty means broadcast (heartbeats only).
	UserID string `json:"-"`
}

// SyncStartedEventData is the data payload for sync.started.
type SyncStartedEventData struct {
	RunID        string `json:"run_id"`
	ResumeCursor string `json:"resume_cursor,omitempty"`
}

// SyncProgressEventData is the data payload for sync.progress.
type SyncProgressEventData struct {
	RunID      string `json:"run_id"`
	Page       int    `json:"page"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Imported   int    `json:"imported"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// SyncCompletedEventData is the data payload for sync.completed.
type SyncCompletedEventData struct {
	LastSyncAt time.Time `json:"last_sync_at"`
	RunID      string    `json:"run_id"`
	NextCursor string    `json:"next_cursor,omitempty"`
	Imported   int       `json:"imported"`
	Pages      int       `json:"pages"`
}

// SyncFailedEventData is the data payload for sync.failed.
type SyncFailedEventData struct {
	RunID        string `json:"run_id"`
	ResumeCursor string `json:"resume_cursor,omitempty"`
	Error        string `json:"error"`
	Imported     int    `json:"imported"`
	Pages        int    `json:"pages"`
}

// CategoryEventData is the data payload for category create/update events.
type CategoryEventData struct {
	Category *domain.Category `json:"category"`
}

// CategoryDeletedEventData is the data payload for category.deleted.
type CategoryDeletedEventData struct {
	CategoryID string `json:"category_id"`
}

// LikeCategoriesEventData is the data payload for like.categories_updated.
type LikeCategoriesEventData struct {
	LikeID      string   `json:"like_id"`
	CategoryIDs []string `json:"category_ids"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newUserEvent(userID string, t EventType, data any) Event {
	return Event{
		Type:      t,
		Data:      data,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// NewSyncStartedEvent creates a sync.started event.
func NewSyncStartedEvent(userID string, data SyncStartedEventData) Event {
	return newUserEvent(userID, EventSyncStarted, data)
}

// NewSyncProgressEvent creates a sync.progress event.
func NewSyncProgressEvent(userID string, data SyncProgressEventData) Event {
	return newUserEvent(userID, EventSyncProgress, data)
}

// NewSyncCompletedEvent creates a sync.completed event.
func NewSyncCompletedEvent(userID string, data SyncCompletedEventData) Event {
	return newUserEvent(userID, EventSyncCompleted, data)
}

// NewSyncFailedEvent creates a sync.failed event.
func NewSyncFailedEvent(userID string, data SyncFailedEventData) Event {
	return newUserEvent(userID, EventSyncFailed, data)
}

// NewCategoryCreatedEvent creates a category.created event.
func NewCategoryCreatedEvent(c *domain.Category) Event {
	return newUserEvent(c.OwnerID, EventCategoryCreated, CategoryEventData{Category: c})
}

// NewCategoryUpdatedEvent creates a category.updated event.
func NewCategoryUpdatedEvent(c *domain.Category) Event {
	return newUserEvent(c.OwnerID, EventCategoryUpdated, CategoryEventData{Category: c})
}

// NewCategoryDeletedEvent creates a category.deleted event.
func NewCategoryDeletedEvent(userID, categoryID string) Event {
	return newUserEvent(userID, EventCategoryDeleted, CategoryDeletedEventData{CategoryID: categoryID})
}

// NewLikeCategoriesUpdatedEvent creates a like.categories_updated event.
func NewLikeCategoriesUpdatedEvent(item *domain.LikedItem) Event {
	return newUserEvent(item.OwnerID, EventLikeCategoriesUpdated, LikeCategoriesEventData{
		LikeID:      item.ID,
		CategoryIDs: item.CategoryIDs,
	})
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
