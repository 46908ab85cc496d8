package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killswitch/internal/store"
)

func TestServiceList(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")

	t.Run("requires authentication", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/services/list", "", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty table renders an empty array", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/services/list", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("lists seeded services", func(t *testing.T) {
		ts.seedService(t, "Acme", "acme-client")
		rec := ts.do(t, http.MethodGet, "/services/list", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		services := decodeJSON[[]store.Service](t, rec)
		require.Len(t, services, 1)
		assert.Equal(t, "Acme", services[0].Name)
		assert.Equal(t, "acme-client", services[0].Client)
	})
}

func TestServiceCreate(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")

	t.Run("creates with defaults", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/services/create", pair.AccessToken, map[string]any{
			"name":   "Acme",
			"client": "acme-client",
			"email":  "ops@acme.test",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		service := decodeJSON[store.Service](t, rec)
		assert.NotZero(t, service.ID)
		assert.True(t, service.Active)

		// The snapshot was rebuilt, so the new client is visible to validation.
		snap := ts.cache.Current()
		assert.NotNil(t, snap.FindServiceByClient("acme-client"))
	})

	t.Run("missing name or client", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/services/create", pair.AccessToken, map[string]any{
			"name": "NoClient",
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/services/create", pair.AccessToken, map[string]any{
			"name":   "BadEmail",
			"client": "bad-email",
			"email":  "not-an-email",
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/services/create", pair.AccessToken, map[string]any{
			"name":   "Acme",
			"client": "another-client",
		}, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, "CONFLICT", env.Error.ErrorCode)
	})

	t.Run("explicit inactive", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/services/create", pair.AccessToken, map[string]any{
			"name":   "Dormant",
			"client": "dormant-client",
			"active": false,
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		service := decodeJSON[store.Service](t, rec)
		assert.False(t, service.Active)
	})
}

func TestServiceUpdate(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")
	service := ts.seedService(t, "Acme", "acme-client")

	t.Run("unknown id", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/services/update", pair.AccessToken, map[string]any{
			"id":   int64(9999),
			"name": "Ghost",
		}, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, "SERVICE_NOT_FOUND", env.Error.ErrorCode)
	})

	t.Run("missing id", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/services/update", pair.AccessToken, map[string]any{
			"name": "NoID",
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("partial update keeps other fields", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/services/update", pair.AccessToken, map[string]any{
			"id":    service.ID,
			"email": "new@acme.test",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		updated := decodeJSON[store.Service](t, rec)
		assert.Equal(t, "new@acme.test", updated.Email)
		assert.Equal(t, "Acme", updated.Name)
		assert.Equal(t, "acme-client", updated.Client)
	})

	t.Run("deactivation reaches the snapshot", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/services/update", pair.AccessToken, map[string]any{
			"id":     service.ID,
			"active": false,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		snap := ts.cache.Current()
		got := snap.FindServiceByClient("acme-client")
		require.NotNil(t, got)
		assert.False(t, got.Active)
	})
}
