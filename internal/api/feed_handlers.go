package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/feed"
)

func (s *Server) registerFeedRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "lookupFeedUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/feed/users/{username}",
		Summary:     "Look up platform user",
		Description: "Resolves a handle on the source platform using the caller's credential",
		Tags:        []string{"Feed"},
		Security:    []map[string][]string{{"bearer": {}}},
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, s.handleLookupFeedUser)
}

// FeedUserResponse is a platform account.
type FeedUserResponse struct {
	ID        string `json:"id" doc:"Platform user ID"`
	Handle    string `json:"handle" doc:"Handle without @"`
	Name      string `json:"name" doc:"Display name"`
	AvatarURL string `json:"avatar_url,omitempty" doc:"Profile image URL"`
}

// LookupFeedUserInput contains parameters for a user lookup.
type LookupFeedUserInput struct {
	Username string `path:"username" doc:"Handle, with or without @"`
}

// FeedUserOutput wraps the user response for Huma.
type FeedUserOutput struct {
	Body FeedUserResponse
}

func (s *Server) handleLookupFeedUser(ctx context.Context, input *LookupFeedUserInput) (*FeedUserOutput, error) {
	session, err := GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s.services.Feed == nil {
		return nil, s.apiError(ctx, domainerrors.Internal("feed client not configured"))
	}

	user, err := s.services.Feed.LookupUser(ctx, session.Credential(), input.Username)
	if err != nil {
		return nil, s.apiError(ctx, feedError(err))
	}

	return &FeedUserOutput{Body: FeedUserResponse{
		ID:        user.ID,
		Handle:    user.Username,
		Name:      user.Name,
		AvatarURL: user.ProfileImageURL,
	}}, nil
}

// feedError maps a feed transport failure to a coded error.
func feedError(err error) error {
	var te *feed.TransportError
	if !errors.As(err, &te) {
		return domainerrors.Upstream(err, "feed request failed")
	}
	switch {
	case te.Unauthorized():
		return domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "feed rejected the credential")
	case te.Status == http.StatusNotFound:
		return domainerrors.Wrap(err, domainerrors.CodeNotFound, te.Message)
	case te.Status == http.StatusBadRequest:
		return domainerrors.Wrap(err, domainerrors.CodeValidation, te.Message)
	default:
		return domainerrors.Upstream(err, "feed request failed")
	}
}
