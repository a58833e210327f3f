package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/auth"
	"github.com/likeshelf/likeshelf-server/internal/domain"
	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/feed"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/reconcile"
	"github.com/likeshelf/likeshelf-server/internal/search"
	"github.com/likeshelf/likeshelf-server/internal/sse"
	"github.com/likeshelf/likeshelf-server/internal/store/sqlite"
)

var alice = auth.Session{UserID: "1001", FeedToken: "alice-token"}

type syncFixture struct {
	svc    *SyncService
	store  *sqlite.Store
	feed   *fakeFeed
	events *recorder
}

func setupTestSync(t *testing.T, opts SyncOptions, index ItemIndex) *syncFixture {
	t.Helper()

	s := newTestStore(t)
	ff := newFakeFeed()
	rec := &recorder{}
	log := logger.Discard()

	if opts.FetchAttempts == 0 {
		opts.FetchAttempts = 3
	}
	opts.RetryDelay = time.Millisecond
	opts.MaxRetryDelay = 5 * time.Millisecond

	svc := NewSyncService(s, ff, reconcile.New(s, log), index, rec, opts, log)
	return &syncFixture{svc: svc, store: s, feed: ff, events: rec}
}

func twoPageFeed(ff *fakeFeed) {
	ff.pages[""] = page("c2",
		rawItem("200", "Figma tips for product designers", "a1", "2024-03-02T10:00:00Z", 12),
		rawItem("199", "Go 1.23 iterators", "a2", "2024-03-01T10:00:00Z", 40),
	)
	ff.pages["c2"] = page("",
		rawItem("150", "Old but gold", "a9", "2024-01-01T00:00:00Z", 1),
		rawItem("200", "Figma tips for product designers (edited)", "a1", "2024-03-02T10:00:00Z", 13),
	)
}

func TestSync_TwoPages(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	twoPageFeed(fx.feed)
	ctx := context.Background()

	res, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 4, res.Imported)
	assert.Empty(t, res.NextCursor)
	assert.True(t, res.SeededDefaults)
	require.NotNil(t, res.LastSyncAt)

	items, err := fx.store.ListItems(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	byExt := map[string]*domain.LikedItem{}
	for _, it := range items {
		byExt[it.ExternalID] = it
	}
	assert.Equal(t, "Figma tips for product designers (edited)", byExt["200"].Content)
	assert.Equal(t, 13, byExt["200"].Metrics.LikeCount)
	assert.Equal(t, "designer", byExt["200"].Author.Handle)
	assert.Equal(t, domain.UnknownAuthorHandle, byExt["150"].Author.Handle)

	cursor, err := fx.store.GetSyncCursor(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, cursor.NextToken)
	require.NotNil(t, cursor.LastSyncAt)

	prefs, err := fx.store.GetPreferences(ctx, alice.UserID)
	require.NoError(t, err)
	require.NotNil(t, prefs.LastSyncAt)

	cats, err := fx.store.ListCategories(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, cats, len(domain.DefaultCategories))

	assert.Equal(t, []sse.EventType{
		sse.EventSyncStarted,
		sse.EventSyncProgress,
		sse.EventSyncProgress,
		sse.EventSyncCompleted,
	}, fx.events.types())
	for _, e := range fx.events.events {
		assert.Equal(t, alice.UserID, e.UserID)
	}
}

func TestSync_SecondRunIsIdempotent(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	twoPageFeed(fx.feed)
	ctx := context.Background()

	_, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)

	items, err := fx.store.ListItems(ctx, alice.UserID)
	require.NoError(t, err)
	firstIDs := map[string]string{}
	for _, it := range items {
		firstIDs[it.ExternalID] = it.ID
	}

	res, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.False(t, res.SeededDefaults)

	items, err = fx.store.ListItems(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, firstIDs[it.ExternalID], it.ID, "internal id must be stable")
	}

	cats, err := fx.store.ListCategories(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, cats, len(domain.DefaultCategories))
}

func TestSync_SyncKeepsUserCategories(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	twoPageFeed(fx.feed)
	ctx := context.Background()

	_, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)

	cats, err := fx.store.ListCategories(ctx, alice.UserID)
	require.NoError(t, err)
	items, err := fx.store.ListItems(ctx, alice.UserID)
	require.NoError(t, err)

	_, err = fx.store.SetItemCategories(ctx, alice.UserID, items[0].ID, []string{cats[0].ID})
	require.NoError(t, err)

	_, err = fx.svc.Sync(ctx, alice)
	require.NoError(t, err)

	got, err := fx.store.GetItem(ctx, alice.UserID, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{cats[0].ID}, got.CategoryIDs)
}

func TestSync_RetriesTransientErrors(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{FetchAttempts: 3}, nil)
	twoPageFeed(fx.feed)
	fx.feed.errs[""] = []error{
		&feed.TransportError{Op: "fetch liked page", Status: 503, Message: "Service Unavailable"},
		&feed.TransportError{Op: "fetch liked page", Status: 429, Message: "Too Many Requests"},
	}

	res, err := fx.svc.Sync(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []string{"", "", "", "c2"}, fx.feed.callLog())
}

func TestSync_FailureKeepsCursorAndResumes(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{FetchAttempts: 2}, nil)
	twoPageFeed(fx.feed)
	upstream := &feed.TransportError{Op: "fetch liked page", Status: 500, Message: "Internal Server Error"}
	fx.feed.errs["c2"] = []error{upstream, upstream}
	ctx := context.Background()

	_, err := fx.svc.Sync(ctx, alice)
	require.Error(t, err)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, 1, syncErr.Pages)
	assert.Equal(t, 2, syncErr.Imported)
	assert.Equal(t, "c2", syncErr.ResumeCursor)
	assert.ErrorIs(t, err, domainerrors.ErrUpstream)

	var transportErr *feed.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 500, transportErr.Status)

	cursor, err := fx.store.GetSyncCursor(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "c2", cursor.NextToken)
	assert.Nil(t, cursor.LastSyncAt)

	count, err := fx.store.CountItems(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, sse.EventSyncFailed, fx.events.types()[len(fx.events.types())-1])

	// The next run starts where the last one stopped.
	res, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, []string{"", "c2", "c2", "c2"}, fx.feed.callLog())

	count, err = fx.store.CountItems(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSync_UnauthorizedIsNotRetried(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{FetchAttempts: 5}, nil)
	fx.feed.errs[""] = []error{&feed.TransportError{Op: "fetch liked page", Status: 401, Message: "Unauthorized"}}

	_, err := fx.svc.Sync(context.Background(), alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
	assert.Len(t, fx.feed.callLog(), 1)
}

func TestSync_RequiresCredential(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)

	_, err := fx.svc.Sync(context.Background(), auth.Session{UserID: "1001"})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
	assert.Empty(t, fx.feed.callLog())
}

func TestSync_MaxPagesStopsAndResumes(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{MaxPages: 1}, nil)
	twoPageFeed(fx.feed)
	ctx := context.Background()

	res, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, "c2", res.NextCursor)
	assert.Nil(t, res.LastSyncAt)

	res, err = fx.svc.Sync(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Empty(t, res.NextCursor)
	assert.NotNil(t, res.LastSyncAt)
	assert.Equal(t, []string{"", "c2"}, fx.feed.callLog())
}

func TestSync_ConcurrentRunIsRejected(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	twoPageFeed(fx.feed)
	fx.feed.gate = make(chan struct{})
	fx.feed.entered = make(chan struct{}, 10)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := fx.svc.Sync(ctx, alice)
		done <- err
	}()

	select {
	case <-fx.feed.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sync never reached the feed")
	}

	_, err := fx.svc.Sync(ctx, alice)
	assert.ErrorIs(t, err, domainerrors.ErrSyncInProgress)

	status, err := fx.svc.Status(ctx, alice.UserID)
	require.NoError(t, err)
	assert.True(t, status.InProgress)
	assert.NotEmpty(t, status.RunID)

	// Another user is not blocked by alice's run.
	bob := auth.Session{UserID: "2002", FeedToken: "bob-token"}
	bobDone := make(chan error, 1)
	go func() {
		_, err := fx.svc.Sync(ctx, bob)
		bobDone <- err
	}()
	select {
	case <-fx.feed.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("second user's sync was blocked")
	}

	close(fx.feed.gate)
	require.NoError(t, <-done)
	require.NoError(t, <-bobDone)

	status, err = fx.svc.Status(ctx, alice.UserID)
	require.NoError(t, err)
	assert.False(t, status.InProgress)
	assert.Equal(t, 3, status.ItemCount)
}

func TestSync_CancelledContext(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	twoPageFeed(fx.feed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.svc.Sync(ctx, alice)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSync_SkipsBadRecords(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	fx.feed.pages[""] = page("",
		rawItem("10", "ok", "a1", "2024-01-01T00:00:00Z", 0),
		rawItem("", "no id", "a1", "2024-01-01T00:00:00Z", 0),
		rawItem("11", "bad time", "a1", "yesterday", 0),
	)

	res, err := fx.svc.Sync(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Skipped)
}

func TestSync_EmptyPageWithCursorContinues(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	fx.feed.pages[""] = page("c2", rawItem("300", "Newest", "a1", "2024-03-03T10:00:00Z", 1))
	fx.feed.pages["c2"] = page("c3")
	fx.feed.pages["c3"] = page("", rawItem("100", "Older", "a2", "2024-01-03T10:00:00Z", 1))
	ctx := context.Background()

	res, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, []string{"", "c2", "c3"}, fx.feed.callLog())

	n, err := fx.store.CountItems(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSync_RepeatedCursorEndsRun(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)
	fx.feed.pages[""] = page("c2", rawItem("300", "Newest", "a1", "2024-03-03T10:00:00Z", 1))
	fx.feed.pages["c2"] = page("c2")
	ctx := context.Background()

	res, err := fx.svc.Sync(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Empty(t, res.NextCursor)
	require.NotNil(t, res.LastSyncAt)
	assert.Equal(t, []string{"", "c2"}, fx.feed.callLog())

	cursor, err := fx.store.GetSyncCursor(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, cursor.NextToken)
}

func TestSync_FeedsSearchIndex(t *testing.T) {
	index, err := search.NewSearchIndex(search.Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	fx := setupTestSync(t, SyncOptions{}, index)
	twoPageFeed(fx.feed)

	_, err = fx.svc.Sync(context.Background(), alice)
	require.NoError(t, err)

	ids, err := index.Candidates(context.Background(), alice.UserID, "figma")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

// trackingIndex records the write brackets around each page commit.
type trackingIndex struct {
	ItemIndex
	open, closed     int
	indexedWhileOpen []int
}

func (ti *trackingIndex) BeginWrite() (func(), error) {
	ti.open++
	return func() { ti.closed++ }, nil
}

func (ti *trackingIndex) IndexItems(items []*domain.LikedItem) error {
	ti.indexedWhileOpen = append(ti.indexedWhileOpen, ti.open-ti.closed)
	return nil
}

func TestSync_BracketsEachCommitWithIndexWrite(t *testing.T) {
	ti := &trackingIndex{}
	fx := setupTestSync(t, SyncOptions{}, ti)
	twoPageFeed(fx.feed)

	_, err := fx.svc.Sync(context.Background(), alice)
	require.NoError(t, err)

	assert.Equal(t, 2, ti.open)
	assert.Equal(t, 2, ti.closed)
	assert.Equal(t, []int{1, 1}, ti.indexedWhileOpen, "items are indexed before the write closes")
}

func TestStatus_NeverSynced(t *testing.T) {
	fx := setupTestSync(t, SyncOptions{}, nil)

	status, err := fx.svc.Status(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, status.InProgress)
	assert.Nil(t, status.LastSyncAt)
	assert.Zero(t, status.ItemCount)
}
