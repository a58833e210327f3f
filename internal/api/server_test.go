package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/auth"
	"github.com/likeshelf/likeshelf-server/internal/config"
	"github.com/likeshelf/likeshelf-server/internal/feed"
	"github.com/likeshelf/likeshelf-server/internal/http/response"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/query"
	"github.com/likeshelf/likeshelf-server/internal/reconcile"
	"github.com/likeshelf/likeshelf-server/internal/service"
	"github.com/likeshelf/likeshelf-server/internal/sse"
	"github.com/likeshelf/likeshelf-server/internal/store/sqlite"
	"github.com/likeshelf/likeshelf-server/internal/validation"
)

// testEnvelope decodes the response envelope with typed data.
type testEnvelope[T any] struct {
	Version int                 `json:"v"`
	Success bool                `json:"success"`
	Data    T                   `json:"data"`
	Error   *response.ErrorBody `json:"error"`
}

func decodeEnvelope[T any](t *testing.T, body []byte) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	require.Equal(t, response.Version, env.Version)
	return env
}

// stubFeed serves the same pages to every user. When failing is set every
// fetch returns a 503.
type stubFeed struct {
	mu      sync.Mutex
	pages   map[string]*feed.Page
	users   map[string]*feed.User
	failing bool
}

func (f *stubFeed) FetchPage(_ context.Context, _ feed.Credential, cursor string, _ int) (*feed.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, &feed.TransportError{Op: "fetch liked page", Status: http.StatusServiceUnavailable, Message: "Service Unavailable"}
	}
	p, ok := f.pages[cursor]
	if !ok {
		return nil, &feed.TransportError{Op: "fetch liked page", Status: http.StatusNotFound, Message: "no such page"}
	}
	return p, nil
}

func (f *stubFeed) LookupUser(_ context.Context, cred feed.Credential, username string) (*feed.User, error) {
	if cred.Token == "" {
		return nil, &feed.TransportError{Op: "lookup user", Status: http.StatusUnauthorized, Message: "Unauthorized"}
	}
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, &feed.TransportError{Op: "lookup user", Status: http.StatusNotFound, Message: "user not found"}
}

func (f *stubFeed) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func newStubFeed() *stubFeed {
	users := []feed.User{
		{ID: "a1", Username: "designer", Name: "Dana Design", ProfileImageURL: "https://img.test/dana.png"},
		{ID: "a2", Username: "gopher", Name: "Gopher Gary"},
	}
	return &stubFeed{
		pages: map[string]*feed.Page{
			"": {
				Items: []feed.RawItem{
					{ID: "300", Text: "Figma variables are great", CreatedAt: "2024-03-01T10:00:00.000Z", AuthorID: "a1", PublicMetrics: &feed.PublicMetrics{LikeCount: 7}},
					{ID: "299", Text: "Go 1.22 range over func", CreatedAt: "2024-02-29T10:00:00.000Z", AuthorID: "a2", PublicMetrics: &feed.PublicMetrics{LikeCount: 40}},
				},
				Includes:    feed.Includes{Users: users},
				ResultCount: 2,
				NextCursor:  "p2",
			},
			"p2": {
				Items: []feed.RawItem{
					{ID: "120", Text: "Prototyping in figma", CreatedAt: "2024-01-15T10:00:00.000Z", AuthorID: "a1", PublicMetrics: &feed.PublicMetrics{LikeCount: 3}},
				},
				Includes:    feed.Includes{Users: users},
				ResultCount: 1,
			},
		},
		users: map[string]*feed.User{"designer": &users[0]},
	}
}

// testServer wraps the API server for testing.
type testServer struct {
	*Server
	api        humatest.TestAPI
	feed       *stubFeed
	tokens     *auth.TokenService
	sseManager *sse.Manager
}

// setupTestServer creates a test server backed by a temporary SQLite database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.Discard()
	tmpDir := t.TempDir()

	st, err := sqlite.Open(tmpDir+"/likes.db", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	key, err := auth.LoadOrGenerateKey(tmpDir)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{SyncPerMinute: 3},
	}

	sseManager := sse.NewManager(log)
	stub := newStubFeed()
	validator := validation.New()

	services := &Services{
		Sync: service.NewSyncService(st, stub, reconcile.New(st, log), nil, sseManager, service.SyncOptions{
			PageSize:      100,
			FetchAttempts: 2,
			RetryDelay:    time.Millisecond,
		}, log),
		Like:        service.NewLikeService(st, query.New("en"), nil, sseManager, log),
		Category:    service.NewCategoryService(st, validator, sseManager, log),
		Preferences: service.NewPreferencesService(st, validator, log),
		Feed:        stub,
	}

	s := NewServer(st, services, tokens, sseManager, cfg, log)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &testServer{
		Server:     s,
		api:        humatest.Wrap(t, s.API()),
		feed:       stub,
		tokens:     tokens,
		sseManager: sseManager,
	}
}

// bearer mints a session token for userID and returns the header argument.
func (ts *testServer) bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := ts.tokens.GenerateSessionToken(auth.Session{UserID: userID, FeedToken: "feed-token-" + userID})
	require.NoError(t, err)
	return fmt.Sprintf("Authorization: Bearer %s", token)
}

// sync runs a sync for the user and requires success.
func (ts *testServer) sync(t *testing.T, authz string) *service.SyncResult {
	t.Helper()
	resp := ts.api.Post("/api/v1/sync", authz)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env := decodeEnvelope[*service.SyncResult](t, resp.Body.Bytes())
	return env.Data
}
