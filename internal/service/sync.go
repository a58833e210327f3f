package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"github.com/likeshelf/likeshelf-server/internal/auth"
	"github.com/likeshelf/likeshelf-server/internal/domain"
	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/feed"
	"github.com/likeshelf/likeshelf-server/internal/normalize"
	"github.com/likeshelf/likeshelf-server/internal/reconcile"
	"github.com/likeshelf/likeshelf-server/internal/sse"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// FeedClient fetches pages of a user's liked posts.
type FeedClient interface {
	FetchPage(ctx context.Context, cred feed.Credential, cursor string, pageSize int) (*feed.Page, error)
}

// SyncOptions tunes a sync run.
type SyncOptions struct {
	PageSize int
	// MaxPages stops a run after this many pages; 0 means no limit.
	MaxPages int
	// FetchAttempts is the total number of tries per page on transient errors.
	FetchAttempts int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// SyncResult summarizes a finished (or paused) sync run.
type SyncResult struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	RunID      string     `json:"run_id"`
	// NextCursor is set when the run stopped at the page limit. The next
	// run resumes from it.
	NextCursor     string `json:"next_cursor,omitempty"`
	Imported       int    `json:"imported"`
	Inserted       int    `json:"inserted"`
	Updated        int    `json:"updated"`
	Skipped        int    `json:"skipped"`
	Pages          int    `json:"pages"`
	SeededDefaults bool   `json:"seeded_defaults"`
}

// SyncError reports a run that stopped on an error. Pages committed before
// the failure stay committed and ResumeCursor is where the next run starts.
type SyncError struct {
	RunID        string
	ResumeCursor string
	Imported     int
	Pages        int
	Err          error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s stopped after %d pages (%d imported): %v", e.RunID, e.Pages, e.Imported, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Details is the summary attached to API error responses.
func (e *SyncError) Details() map[string]any {
	return map[string]any{
		"run_id":        e.RunID,
		"imported":      e.Imported,
		"pages":         e.Pages,
		"resume_cursor": e.ResumeCursor,
	}
}

// SyncStatus describes a user's sync state.
type SyncStatus struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	NextCursor string     `json:"next_cursor,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	InProgress bool       `json:"in_progress"`
	ItemCount  int        `json:"item_count"`
}

// SyncService pulls a user's liked posts from the feed into storage.
// Runs for the same user are serialized; different users sync in parallel.
type SyncService struct {
	store      store.Store
	feed       FeedClient
	reconciler *reconcile.Engine
	index      ItemIndex
	events     sse.Emitter
	opts       SyncOptions
	logger     *slog.Logger
	now        func() time.Time

	locks   sync.Map // userID -> *sync.Mutex
	running sync.Map // userID -> runID
}

// NewSyncService creates a new sync service. index may be nil.
func NewSyncService(
	s store.Store,
	feedClient FeedClient,
	reconciler *reconcile.Engine,
	index ItemIndex,
	events sse.Emitter,
	opts SyncOptions,
	logger *slog.Logger,
) *SyncService {
	if opts.PageSize == 0 {
		opts.PageSize = feed.DefaultPageSize
	}
	if opts.FetchAttempts < 1 {
		opts.FetchAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = 30 * time.Second
	}
	return &SyncService{
		store:      s,
		feed:       feedClient,
		reconciler: reconciler,
		index:      index,
		events:     events,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *SyncService) userLock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Sync runs one sync for the session's user.
//
// Pages are fetched, normalized and committed one at a time. The resume
// cursor is saved only after a page's batch commits, so an interrupted run
// never skips items. A second call for the same user while one is running
// fails with SYNC_IN_PROGRESS.
func (s *SyncService) Sync(ctx context.Context, session auth.Session) (*SyncResult, error) {
	cred := session.Credential()
	if !cred.Valid() {
		return nil, domainerrors.Unauthorized("session is missing user id or feed credential")
	}
	userID := cred.UserID

	mu := s.userLock(userID)
	if !mu.TryLock() {
		return nil, domainerrors.SyncInProgress("a sync is already running for this user")
	}
	defer mu.Unlock()

	result := &SyncResult{RunID: uuid.NewString()}
	s.running.Store(userID, result.RunID)
	defer s.running.Delete(userID)

	log := s.logger.With("user_id", userID, "run_id", result.RunID)

	if err := ctx.Err(); err != nil {
		return nil, s.fail(log, userID, result, "", err)
	}

	seeded, err := s.reconciler.EnsureDefaults(ctx, userID)
	if err != nil {
		return nil, s.fail(log, userID, result, "", err)
	}
	result.SeededDefaults = seeded

	cursor, err := s.store.GetSyncCursor(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		cursor = domain.NewSyncCursor(userID)
	case err != nil:
		return nil, s.fail(log, userID, result, "", domainerrors.Storage(err, "load sync cursor"))
	}

	token := cursor.NextToken
	log.Info("sync started", "resume_cursor", token)
	s.events.Emit(sse.NewSyncStartedEvent(userID, sse.SyncStartedEventData{
		RunID:        result.RunID,
		ResumeCursor: token,
	}))

	for {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(log, userID, result, token, err)
		}

		page, err := s.fetchPage(ctx, log, cred, token)
		if err != nil {
			return nil, s.fail(log, userID, result, token, err)
		}

		observedAt := s.now().UTC()
		norm := normalize.Page(page, observedAt, log)

		endWrite := s.beginIndexWrite(log)
		rec, err := s.reconciler.Reconcile(ctx, userID, norm.Items)
		if err != nil {
			endWrite()
			return nil, s.fail(log, userID, result, token, err)
		}
		s.indexItems(log, rec.Items)
		endWrite()

		result.Pages++
		result.Inserted += rec.Inserted
		result.Updated += rec.Updated
		result.Imported += rec.Imported()
		result.Skipped += len(norm.Skipped) + rec.Dropped

		next := page.NextCursor
		if next != "" && next == token {
			log.Warn("feed repeated the request cursor, ending run", "cursor", token)
			next = ""
		}
		done := next == ""
		cursor.NextToken = next
		cursor.UpdatedAt = observedAt
		if done {
			cursor.LastSyncAt = &observedAt
		}
		if err := s.store.SaveSyncCursor(ctx, cursor); err != nil {
			return nil, s.fail(log, userID, result, token, domainerrors.Storage(err, "save sync cursor"))
		}
		token = next

		log.Debug("page committed",
			"page", result.Pages,
			"inserted", rec.Inserted,
			"updated", rec.Updated,
			"skipped", len(norm.Skipped)+rec.Dropped,
		)
		s.events.Emit(sse.NewSyncProgressEvent(userID, sse.SyncProgressEventData{
			RunID:      result.RunID,
			Page:       result.Pages,
			Inserted:   rec.Inserted,
			Updated:    rec.Updated,
			Skipped:    len(norm.Skipped) + rec.Dropped,
			Imported:   result.Imported,
			NextCursor: token,
		}))

		if done {
			result.LastSyncAt = &observedAt
			s.recordLastSync(ctx, log, userID, observedAt)
			break
		}
		if s.opts.MaxPages > 0 && result.Pages >= s.opts.MaxPages {
			result.NextCursor = token
			result.LastSyncAt = cursor.LastSyncAt
			break
		}
	}

	log.Info("sync finished",
		"pages", result.Pages,
		"imported", result.Imported,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"next_cursor", result.NextCursor,
	)
	completed := sse.SyncCompletedEventData{
		RunID:      result.RunID,
		NextCursor: result.NextCursor,
		Imported:   result.Imported,
		Pages:      result.Pages,
	}
	if result.LastSyncAt != nil {
		completed.LastSyncAt = *result.LastSyncAt
	}
	s.events.Emit(sse.NewSyncCompletedEvent(userID, completed))

	return result, nil
}

// fetchPage fetches one page, retrying transient transport failures with
// exponential backoff and jitter.
func (s *SyncService) fetchPage(ctx context.Context, log *slog.Logger, cred feed.Credential, token string) (*feed.Page, error) {
	var page *feed.Page

	err := retry.Do(
		func() error {
			p, err := s.feed.FetchPage(ctx, cred, token, s.opts.PageSize)
			if err != nil {
				return err
			}
			page = p
			return nil
		},
		retry.Attempts(uint(s.opts.FetchAttempts)),
		retry.Delay(s.opts.RetryDelay),
		retry.MaxDelay(s.opts.MaxRetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("retrying feed page", "attempt", n+1, "cursor", token, "error", err)
		}),
		retry.RetryIf(feed.IsTransient),
	)
	if err == nil {
		return page, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if feed.IsUnauthorized(err) {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "feed rejected the credential")
	}
	return nil, domainerrors.Upstream(err, "fetch liked items page")
}

// beginIndexWrite opens an index write around one page commit. The index
// marks itself unhealthy when it can't record the write.
func (s *SyncService) beginIndexWrite(log *slog.Logger) func() {
	if s.index == nil {
		return func() {}
	}
	end, err := s.index.BeginWrite()
	if err != nil {
		log.Warn("failed to mark search index write", "error", err)
	}
	return end
}

// indexItems feeds committed items to the candidate index. Failures only
// degrade search to a full scan, so they are logged and swallowed.
func (s *SyncService) indexItems(log *slog.Logger, items []*domain.LikedItem) {
	if s.index == nil || len(items) == 0 {
		return
	}
	if err := s.index.IndexItems(items); err != nil {
		log.Warn("failed to index synced items", "count", len(items), "error", err)
	}
}

func (s *SyncService) recordLastSync(ctx context.Context, log *slog.Logger, userID string, at time.Time) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		prefs = domain.NewPreferences(userID)
	} else if err != nil {
		log.Warn("failed to load preferences for last sync time", "error", err)
		return
	}
	prefs.LastSyncAt = &at
	prefs.UpdatedAt = at
	if err := s.store.SavePreferences(ctx, prefs); err != nil {
		log.Warn("failed to record last sync time", "error", err)
	}
}

func (s *SyncService) fail(log *slog.Logger, userID string, result *SyncResult, resume string, err error) error {
	syncErr := &SyncError{
		RunID:        result.RunID,
		ResumeCursor: resume,
		Imported:     result.Imported,
		Pages:        result.Pages,
		Err:          err,
	}
	log.Error("sync failed",
		"pages", result.Pages,
		"imported", result.Imported,
		"resume_cursor", resume,
		"error", err,
	)
	s.events.Emit(sse.NewSyncFailedEvent(userID, sse.SyncFailedEventData{
		RunID:        result.RunID,
		ResumeCursor: resume,
		Error:        err.Error(),
		Imported:     result.Imported,
		Pages:        result.Pages,
	}))
	return syncErr
}

// Status reports the stored cursor and whether a run is in progress.
func (s *SyncService) Status(ctx context.Context, userID string) (*SyncStatus, error) {
	status := &SyncStatus{}

	cursor, err := s.store.GetSyncCursor(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, domainerrors.Storage(err, "load sync cursor")
	default:
		status.NextCursor = cursor.NextToken
		status.LastSyncAt = cursor.LastSyncAt
	}

	count, err := s.store.CountItems(ctx, userID)
	if err != nil {
		return nil, domainerrors.Storage(err, "count items")
	}
	status.ItemCount = count

	if runID, ok := s.running.Load(userID); ok {
		status.InProgress = true
		status.RunID = runID.(string)
	}
	return status, nil
}
