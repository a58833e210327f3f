package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/likeshelf/likeshelf-server/internal/auth"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// sessionKey is the context key for the authenticated session.
const sessionKey ctxKey = "session"

// GetSession returns the authenticated session from context.
// Returns 401 error if the request carried no valid token.
func GetSession(ctx context.Context) (auth.Session, error) {
	session, ok := ctx.Value(sessionKey).(auth.Session)
	if !ok || session.UserID == "" {
		return auth.Session{}, huma.Error401Unauthorized("Authentication required")
	}
	return session, nil
}

// GetUserID returns the authenticated user id from context.
func GetUserID(ctx context.Context) (string, error) {
	session, err := GetSession(ctx)
	if err != nil {
		return "", err
	}
	return session.UserID, nil
}

func setSession(ctx context.Context, session auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// authMiddleware returns a middleware that validates Bearer tokens and stores
// the session in context. Requests without a valid token continue without
// one; handlers use GetSession to require it.
func authMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.VerifySessionToken(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(setSession(r.Context(), claims.Session())))
		})
	}
}
