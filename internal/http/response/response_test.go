package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/logger"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, map[string]string{"status": "ok"}, logger.Discard())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, float64(Version), body["v"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"status": "ok"}, body["data"])
	assert.NotContains(t, body, "error")
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Unauthorized(w, "missing token", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body, "data")
	assert.Equal(t, map[string]any{"code": "UNAUTHORIZED", "message": "missing token"}, body["error"])
}

func TestTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "slow down", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "RATE_LIMITED", errBody["code"])
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "coded error",
			err:        domainerrors.DuplicateName("category \"AI\" already exists"),
			wantStatus: http.StatusConflict,
			wantCode:   "DUPLICATE_NAME",
			wantMsg:    "category \"AI\" already exists",
		},
		{
			name:       "wrapped coded error hides cause",
			err:        domainerrors.Storage(errors.New("disk I/O error"), "list items"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "STORAGE",
			wantMsg:    "list items",
		},
		{
			name:       "store error",
			err:        store.ErrNotFound.WithMessage("liked item not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
			wantMsg:    "liked item not found",
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, logger.Discard())

			assert.Equal(t, tt.wantStatus, w.Code)
			errBody := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tt.wantCode, errBody["code"])
			assert.Equal(t, tt.wantMsg, errBody["message"])
		})
	}
}

func TestHandleError_KeepsDetails(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, domainerrors.ValidationWithDetails("validation failed", map[string]string{"name": "is required"}), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, map[string]any{"name": "is required"}, errBody["details"])
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, domainerrors.CodeValidation, StatusCode(http.StatusUnprocessableEntity))
	assert.Equal(t, domainerrors.CodeNotFound, StatusCode(http.StatusNotFound))
	assert.Equal(t, domainerrors.CodeRateLimited, StatusCode(http.StatusTooManyRequests))
	assert.Equal(t, domainerrors.CodeInternal, StatusCode(http.StatusTeapot))
}
