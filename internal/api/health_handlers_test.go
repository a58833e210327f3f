package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)

	env := decodeEnvelope[HealthResponse](t, resp.Body.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "healthy", env.Data.Components["storage"].Status)
	assert.Equal(t, "disabled", env.Data.Components["search"].Status)
	assert.Equal(t, "no connected clients", env.Data.Components["sse"].Message)
}

func TestHealthCheck_StorageDown(t *testing.T) {
	ts := setupTestServer(t)
	_ = ts.store.Close()

	resp := ts.api.Get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	env := decodeEnvelope[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "unhealthy", env.Data.Status)
	assert.Equal(t, "unhealthy", env.Data.Components["storage"].Status)
}

func TestFormatSSEStatus(t *testing.T) {
	assert.Equal(t, "no connected clients", formatSSEStatus(0))
	assert.Equal(t, "1 connected client", formatSSEStatus(1))
	assert.Equal(t, "12 connected clients", formatSSEStatus(12))
}
