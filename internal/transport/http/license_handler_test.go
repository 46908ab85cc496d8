package http

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killswitch/internal/license"
	"killswitch/internal/store"
)

func futureLicense(serviceID int64) *store.License {
	return &store.License{
		Key:            uuid.NewString(),
		Name:           "prod",
		ServiceID:      serviceID,
		GracePeriod:    86400000,
		Active:         true,
		ExpirationDate: time.Now().Add(30 * 24 * time.Hour),
	}
}

func TestLicenseList(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")
	acme := ts.seedService(t, "Acme", "acme-client")
	other := ts.seedService(t, "Globex", "globex-client")
	ts.seedLicense(t, futureLicense(acme.ID))
	ts.seedLicense(t, &store.License{
		Key:            uuid.NewString(),
		Name:           "globex-prod",
		ServiceID:      other.ID,
		GracePeriod:    86400000,
		Active:         true,
		ExpirationDate: time.Now().Add(24 * time.Hour),
	})

	t.Run("requires authentication", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/license/list", "", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lists all licenses with absolute grace boundaries", func(t *testing.T) {
		before := time.Now()
		rec := ts.do(t, http.MethodGet, "/license/list", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		views := decodeJSON[[]struct {
			Key         string    `json:"key"`
			GracePeriod time.Time `json:"grace_period"`
		}](t, rec)
		require.Len(t, views, 2)
		for _, v := range views {
			assert.WithinDuration(t, before.Add(24*time.Hour), v.GracePeriod, 5*time.Second)
		}
	})

	t.Run("filters by service", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, fmt.Sprintf("/license/list?service_id=%d", acme.ID), pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		views := decodeJSON[[]struct {
			ServiceID int64 `json:"service_id"`
		}](t, rec)
		require.Len(t, views, 1)
		assert.Equal(t, acme.ID, views[0].ServiceID)
	})

	t.Run("non-integer service id", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/license/list?service_id=abc", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown service id", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/license/list?service_id=9999", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestLicenseCreate(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")
	acme := ts.seedService(t, "Acme", "acme-client")

	t.Run("creates with defaults and a generated key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/license/create", pair.AccessToken, map[string]any{
			"name":       "prod",
			"service_id": acme.ID,
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		view := decodeJSON[struct {
			Key            string    `json:"key"`
			Active         bool      `json:"active"`
			ExpirationDate time.Time `json:"expiration_date"`
		}](t, rec)

		id, err := uuid.Parse(view.Key)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), id.Version())
		assert.True(t, view.Active)
		assert.WithinDuration(t, time.Now().AddDate(1, 0, 0), view.ExpirationDate, time.Minute)

		// Visible to validation without a restart.
		assert.NotNil(t, ts.cache.Current().FindLicenseByKey(view.Key))
	})

	t.Run("client supplied key is ignored", func(t *testing.T) {
		supplied := uuid.NewString()
		rec := ts.do(t, http.MethodPut, "/license/create", pair.AccessToken, map[string]any{
			"name":       "keyed",
			"service_id": acme.ID,
			"key":        supplied,
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		view := decodeJSON[struct {
			Key string `json:"key"`
		}](t, rec)
		assert.NotEqual(t, supplied, view.Key)
	})

	t.Run("grace period below one hour", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/license/create", pair.AccessToken, map[string]any{
			"name":         "short-grace",
			"service_id":   acme.ID,
			"grace_period": 1000,
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("expiration in the past", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/license/create", pair.AccessToken, map[string]any{
			"name":            "expired-on-arrival",
			"service_id":      acme.ID,
			"expiration_date": time.Now().Add(-time.Hour).Format(time.RFC3339),
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown service", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/license/create", pair.AccessToken, map[string]any{
			"name":       "orphan",
			"service_id": 9999,
		}, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing required fields", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/license/create", pair.AccessToken, map[string]any{
			"name": "no-service",
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLicenseUpdate(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")
	acme := ts.seedService(t, "Acme", "acme-client")
	lic := ts.seedLicense(t, futureLicense(acme.ID))

	t.Run("missing key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/license/update", pair.AccessToken, map[string]any{
			"name": "renamed",
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/license/update", pair.AccessToken, map[string]any{
			"key": uuid.NewString(),
		}, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, "LICENSE_NOT_FOUND", env.Error.ErrorCode)
	})

	t.Run("unknown target service", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/license/update", pair.AccessToken, map[string]any{
			"key":        lic.Key,
			"service_id": 9999,
		}, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, "SERVICE_NOT_FOUND", env.Error.ErrorCode)
	})

	t.Run("partial update deactivates and reaches validation", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/license/update", pair.AccessToken, map[string]any{
			"key":    lic.Key,
			"active": false,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := ts.licenses.GetByKey(context.Background(), lic.Key)
		require.NoError(t, err)
		assert.False(t, stored.Active)
		assert.Equal(t, lic.Name, stored.Name)

		got := ts.cache.Current().FindLicenseByKey(lic.Key)
		require.NotNil(t, got)
		assert.False(t, got.Active)
	})
}

func TestLicenseValidateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	acme := ts.seedService(t, "Acme", "acme-client")
	lic := ts.seedLicense(t, futureLicense(acme.ID))

	t.Run("no authentication required", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/license/validate", "", map[string]string{
			"key": lic.Key,
		}, map[string]string{"Client": "acme-client"})
		require.Equal(t, http.StatusOK, rec.Code)

		result := decodeJSON[license.ValidatedLicense](t, rec)
		assert.Equal(t, lic.Key, result.Key)
		assert.Equal(t, "acme-client", result.Client)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.GracePeriod, 5*time.Second)
	})

	t.Run("missing client header", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/license/validate", "", map[string]string{
			"key": lic.Key,
		}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, license.ReasonInvalidClient, env.Error.ErrorCode)
		assert.Equal(t, "Invalid request", env.Error.Message)
	})

	t.Run("malformed key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/license/validate", "", map[string]string{
			"key": "not-a-uuid",
		}, map[string]string{"Client": "acme-client"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, license.ReasonInvalidKey, env.Error.ErrorCode)
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/license/validate", "", map[string]string{
			"key": uuid.NewString(),
		}, map[string]string{"Client": "acme-client"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, license.ReasonLicenseNotFound, env.Error.ErrorCode)
	})

	t.Run("inactive license", func(t *testing.T) {
		inactive := futureLicense(acme.ID)
		inactive.Name = "inactive"
		inactive.Active = false
		created := ts.seedLicense(t, inactive)

		rec := ts.do(t, http.MethodPost, "/license/validate", "", map[string]string{
			"key": created.Key,
		}, map[string]string{"Client": "acme-client"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		env := decodeJSON[errorEnvelope](t, rec)
		assert.Equal(t, license.ReasonLicenseInactive, env.Error.ErrorCode)
	})

	t.Run("mutation is visible without restart", func(t *testing.T) {
		pair := ts.seedUser(t, "admin", "pw")
		rec := ts.do(t, http.MethodPatch, "/license/update", pair.AccessToken, map[string]any{
			"key":    lic.Key,
			"active": false,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		validate := ts.do(t, http.MethodPost, "/license/validate", "", map[string]string{
			"key": lic.Key,
		}, map[string]string{"Client": "acme-client"})
		require.Equal(t, http.StatusForbidden, validate.Code)
	})
}
