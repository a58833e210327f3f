package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likeshelf/likeshelf-server/internal/domain"
)

func TestCategories_CRUD(t *testing.T) {
	ts := setupTestServer(t)
	authz := ts.bearer(t, "u1")

	resp := ts.api.Post("/api/v1/categories", authz, map[string]any{"name": "Reading"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decodeEnvelope[CategoryResponse](t, resp.Body.Bytes())
	assert.True(t, created.Success)
	assert.Equal(t, "Reading", created.Data.Name)
	assert.Equal(t, domain.DefaultCategoryColor, created.Data.Color)

	resp = ts.api.Patch("/api/v1/categories/"+created.Data.ID, authz, map[string]any{"color": "#112233"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decodeEnvelope[CategoryResponse](t, resp.Body.Bytes())
	assert.Equal(t, "Reading", updated.Data.Name)
	assert.Equal(t, "#112233", updated.Data.Color)

	list := decodeEnvelope[ListCategoriesResponse](t, ts.api.Get("/api/v1/categories", authz).Body.Bytes())
	require.Len(t, list.Data.Categories, 1)

	resp = ts.api.Delete("/api/v1/categories/"+created.Data.ID, authz)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Delete("/api/v1/categories/"+created.Data.ID, authz)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCategories_DuplicateName(t *testing.T) {
	ts := setupTestServer(t)
	authz := ts.bearer(t, "u1")
	ts.sync(t, authz)

	resp := ts.api.Post("/api/v1/categories", authz, map[string]any{"name": "AI"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	env := decodeEnvelope[any](t, resp.Body.Bytes())
	assert.False(t, env.Success)
	assert.Equal(t, "DUPLICATE_NAME", env.Error.Code)
}

func TestCategories_Validation(t *testing.T) {
	ts := setupTestServer(t)
	authz := ts.bearer(t, "u1")

	resp := ts.api.Post("/api/v1/categories", authz, map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	env := decodeEnvelope[any](t, resp.Body.Bytes())
	assert.Equal(t, "VALIDATION", env.Error.Code)
	assert.Equal(t, map[string]any{"name": "is required"}, env.Error.Details)

	resp = ts.api.Post("/api/v1/categories", authz, map[string]any{"name": "ok", "color": "blue"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.api.Post("/api/v1/categories", authz, map[string]any{"color": "#fff"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	env = decodeEnvelope[any](t, resp.Body.Bytes())
	assert.Equal(t, "VALIDATION", env.Error.Code)
}

func TestCategories_Stats(t *testing.T) {
	ts := setupTestServer(t)
	authz := ts.bearer(t, "u1")
	ts.sync(t, authz)

	list := decodeEnvelope[ListLikesResponse](t, ts.api.Get("/api/v1/likes", authz).Body.Bytes())
	cats := decodeEnvelope[ListCategoriesResponse](t, ts.api.Get("/api/v1/categories", authz).Body.Bytes())
	require.Len(t, cats.Data.Categories, len(domain.DefaultCategories))

	var research string
	for _, c := range cats.Data.Categories {
		if c.Name == "Research" {
			research = c.ID
		}
	}
	require.NotEmpty(t, research)

	for _, it := range list.Data.Items[:2] {
		resp := ts.api.Put("/api/v1/likes/"+it.ID+"/categories", authz, map[string]any{"category_ids": []string{research}})
		require.Equal(t, http.StatusOK, resp.Code)
	}

	resp := ts.api.Get("/api/v1/categories/stats", authz)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env := decodeEnvelope[CategoryStatsResponse](t, resp.Body.Bytes())
	require.Len(t, env.Data.Stats, len(domain.DefaultCategories))
	assert.Equal(t, "Research", env.Data.Stats[0].Name)
	assert.Equal(t, 2, env.Data.Stats[0].Count)
	assert.Equal(t, "AI", env.Data.Stats[1].Name)
	assert.Equal(t, 0, env.Data.Stats[1].Count)
}

func TestPreferences_GetAndUpdate(t *testing.T) {
	ts := setupTestServer(t)
	authz := ts.bearer(t, "u1")

	resp := ts.api.Get("/api/v1/preferences", authz)
	require.Equal(t, http.StatusOK, resp.Code)
	env := decodeEnvelope[PreferencesResponse](t, resp.Body.Bytes())
	assert.True(t, env.Data.AutoCategorizationEnabled)
	assert.Nil(t, env.Data.LastSyncAt)

	resp = ts.api.Patch("/api/v1/preferences", authz, map[string]any{
		"auto_categorization_enabled": false,
		"default_categories":          []string{"Go"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env = decodeEnvelope[PreferencesResponse](t, resp.Body.Bytes())
	assert.False(t, env.Data.AutoCategorizationEnabled)
	assert.Equal(t, []string{"Go"}, env.Data.DefaultCategories)

	resp = ts.api.Patch("/api/v1/preferences", authz, map[string]any{
		"default_categories": []string{"Go", "Go"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	ts.sync(t, authz)
	env = decodeEnvelope[PreferencesResponse](t, ts.api.Get("/api/v1/preferences", authz).Body.Bytes())
	assert.NotNil(t, env.Data.LastSyncAt)
	assert.False(t, env.Data.AutoCategorizationEnabled)
}
