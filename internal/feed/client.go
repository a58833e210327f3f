// Package feed is a client for the social platform's liked-posts API.
//
// The client fetches one page per call and never retries; callers decide
// which TransportErrors are worth another attempt.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/ratelimit"
)

const (
	// DefaultBaseURL is the platform's public API root.
	DefaultBaseURL = "https://api.twitter.com"

	defaultTimeout = 30 * time.Second
	defaultRPS     = 1.0
	defaultBurst   = 3

	// Page size bounds accepted by the liked_tweets endpoint.
	MinPageSize     = 10
	MaxPageSize     = 100
	DefaultPageSize = 100

	maxBodyBytes = 8 << 20

	tweetFields = "created_at,author_id,public_metrics,attachments"
	expansions  = "author_id,attachments.media_keys"
	userFields  = "username,name,profile_image_url"
	mediaFields = "type,url"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RPS       float64
	Burst     int
	UserAgent string
}

// Client is a rate-limited feed API client.
type Client struct {
	http      *http.Client
	baseURL   string
	timeout   time.Duration
	userAgent string
	limiter   *ratelimit.KeyedRateLimiter
	logger    *slog.Logger
}

// New creates a new feed client.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RPS <= 0 {
		opts.RPS = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "LikeShelf/1.0"
	}

	return &Client{
		http:      &http.Client{},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		limiter:   ratelimit.New(opts.RPS, opts.Burst),
		logger:    logger,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// ClampPageSize bounds n to what the API accepts. Zero or negative selects the default.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n < MinPageSize:
		return MinPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// FetchPage retrieves one page of cred's liked posts, starting at cursor
// (empty for the newest page).
func (c *Client) FetchPage(ctx context.Context, cred Credential, cursor string, pageSize int) (*Page, error) {
	const op = "fetch likes"

	query := url.Values{}
	query.Set("max_results", strconv.Itoa(ClampPageSize(pageSize)))
	query.Set("tweet.fields", tweetFields)
	query.Set("expansions", expansions)
	query.Set("user.fields", userFields)
	query.Set("media.fields", mediaFields)
	if cursor != "" {
		query.Set("pagination_token", cursor)
	}

	path := "/2/users/" + url.PathEscape(cred.UserID) + "/liked_tweets"
	body, err := c.doRequest(ctx, op, cred, path, query)
	if err != nil {
		return nil, err
	}

	page, err := DecodePage(body)
	if err != nil {
		return nil, &TransportError{Op: op, Status: http.StatusOK, Message: "malformed response body", Err: err}
	}

	c.logger.Debug("feed page fetched",
		"user_id", cred.UserID,
		"items", len(page.Items),
		"has_next", page.NextCursor != "",
	)
	return page, nil
}

// DecodePage parses a liked posts response body. NextCursor is whatever
// next_token the upstream sent, even on a page with no data: records can be
// withheld from a page while older ones still follow.
func DecodePage(body []byte) (*Page, error) {
	var resp likedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	page := &Page{
		Items:       resp.Data,
		Includes:    resp.Includes,
		ResultCount: resp.Meta.ResultCount,
		NextCursor:  resp.Meta.NextToken,
	}
	if len(page.Items) == 0 {
		page.Items = nil
	}
	return page, nil
}

// LookupUser resolves a handle (with or without a leading @) to the platform account.
func (c *Client) LookupUser(ctx context.Context, cred Credential, username string) (*User, error) {
	const op = "lookup user"

	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, &TransportError{Op: op, Status: http.StatusBadRequest, Message: "username is required"}
	}

	query := url.Values{}
	query.Set("user.fields", userFields)

	body, err := c.doRequest(ctx, op, cred, "/2/users/by/username/"+url.PathEscape(username), query)
	if err != nil {
		return nil, err
	}

	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{Op: op, Status: http.StatusOK, Message: "malformed response body", Err: err}
	}
	if resp.Data == nil {
		return nil, &TransportError{Op: op, Status: http.StatusNotFound, Message: "user not found"}
	}
	return resp.Data, nil
}

// doRequest executes an authenticated GET with rate limiting and a per-call timeout.
func (c *Client) doRequest(ctx context.Context, op string, cred Credential, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, cred.UserID); err != nil {
		return nil, networkError(op, fmt.Errorf("rate limit wait: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, networkError(op, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, networkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, networkError(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("feed request failed",
			"op", op,
			"user_id", cred.UserID,
			"status", resp.StatusCode,
		)
		return nil, statusError(op, resp.StatusCode, body)
	}
	return body, nil
}
