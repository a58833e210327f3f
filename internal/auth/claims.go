package auth

import (
	"time"

	"github.com/likeshelf/likeshelf-server/internal/feed"
)

// SessionClaims represents the claims stored in a PASETO session token.
// These are encrypted in v4.local tokens, so the feed credential is not
// readable without the key.
type SessionClaims struct {
	UserID    string `json:"user_id"`
	FeedToken string `json:"feed_token"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Session is the authenticated caller: the platform user id, which also
// owns every stored record, and the bearer credential for the feed API.
type Session struct {
	UserID    string
	FeedToken string
}

// Credential returns the feed credential carried by the session.
func (s Session) Credential() feed.Credential {
	return feed.Credential{UserID: s.UserID, Token: s.FeedToken}
}

// Session converts verified claims to a Session.
func (c *SessionClaims) Session() Session {
	return Session{UserID: c.UserID, FeedToken: c.FeedToken}
}
