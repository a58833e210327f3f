package api

import (
	"net/http"

	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/http/response"
)

// handleEvents streams the caller's sync and category events. It is mounted
// on the router directly because huma handlers can't hold a stream open.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	session, err := GetSession(r.Context())
	if err != nil {
		response.Unauthorized(w, "Authentication required", s.logger)
		return
	}
	if s.sseHandler == nil {
		response.Error(w, http.StatusServiceUnavailable, domainerrors.CodeInternal, "event stream not configured", s.logger)
		return
	}
	s.sseHandler.ServeHTTP(w, r, session.UserID)
}
