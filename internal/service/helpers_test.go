package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/feed"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/sse"
	"github.com/likeshelf/likeshelf-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(t.TempDir()+"/likes.db", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recorder is an sse.Emitter that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recorder) Emit(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// fakeFeed serves canned pages keyed by cursor. errs holds failures returned
// (in order) before the page for that cursor is served.
type fakeFeed struct {
	mu    sync.Mutex
	pages map[string]*feed.Page
	errs  map[string][]error
	calls []string

	// When gate is set, FetchPage signals entered and waits for gate to close.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		pages: map[string]*feed.Page{},
		errs:  map[string][]error{},
	}
}

func (f *fakeFeed) FetchPage(ctx context.Context, cred feed.Credential, cursor string, _ int) (*feed.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cursor)
	gate, entered := f.gate, f.entered
	var err error
	if queued := f.errs[cursor]; len(queued) > 0 {
		err, f.errs[cursor] = queued[0], queued[1:]
	}
	page, ok := f.pages[cursor]
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &feed.TransportError{Op: "fetch liked page", Status: 404, Message: fmt.Sprintf("no page for cursor %q", cursor)}
	}
	return page, nil
}

func (f *fakeFeed) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func rawItem(id, text, authorID, createdAt string, likes int) feed.RawItem {
	return feed.RawItem{
		ID:            id,
		Text:          text,
		CreatedAt:     createdAt,
		AuthorID:      authorID,
		PublicMetrics: &feed.PublicMetrics{LikeCount: likes},
	}
}

func page(next string, items ...feed.RawItem) *feed.Page {
	return &feed.Page{
		Items: items,
		Includes: feed.Includes{Users: []feed.User{
			{ID: "a1", Username: "designer", Name: "Dana Design", ProfileImageURL: "https://img.test/dana.png"},
			{ID: "a2", Username: "gopher", Name: "Gopher Gary"},
		}},
		ResultCount: len(items),
		NextCursor:  next,
	}
}
