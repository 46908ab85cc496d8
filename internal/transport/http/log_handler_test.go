package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killswitch/internal/store"
)

func seedLogs(t *testing.T, ts *testServer) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ts.logs.Insert(ctx, "10.0.0.1", "acme-client", true, "", "/license/validate", http.MethodPost))
	require.NoError(t, ts.logs.Insert(ctx, "10.0.0.1", "acme-client", false, "Invalid service key", "/license/validate", http.MethodPost))
	require.NoError(t, ts.logs.Insert(ctx, "10.0.0.2", "", false, "Client header is missing or is invalid", "/license/validate", http.MethodPost))
	// Accesses to the log endpoints themselves are excluded from listings.
	require.NoError(t, ts.logs.Insert(ctx, "10.0.0.3", "", true, "", "/logs/stats", http.MethodGet))
}

func TestLogList(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")

	t.Run("requires authentication", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/logs", "", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty table renders an empty array", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/logs", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("lists recent logs excluding log endpoint accesses", func(t *testing.T) {
		seedLogs(t, ts)
		rec := ts.do(t, http.MethodGet, "/logs", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		logs := decodeJSON[[]store.RequestLog](t, rec)
		require.Len(t, logs, 3)
		for _, l := range logs {
			assert.Equal(t, "/license/validate", l.Endpoint)
		}
	})

	t.Run("rejects a non-positive window", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/logs?days=0", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a non-numeric window", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/logs?days=week", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogStats(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.seedUser(t, "admin", "pw")
	seedLogs(t, ts)

	t.Run("aggregates per endpoint", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/logs/stats?days=7", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		stats := decodeJSON[[]store.EndpointStat](t, rec)
		require.Len(t, stats, 1)
		assert.Equal(t, "/license/validate", stats[0].Endpoint)
		assert.Equal(t, int64(3), stats[0].Count)
	})

	t.Run("aggregates per endpoint and ip", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/logs/statsByUniqueIP?days=7", pair.AccessToken, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		stats := decodeJSON[[]store.EndpointStat](t, rec)
		require.Len(t, stats, 2)
		byIP := map[string]int64{}
		for _, st := range stats {
			byIP[st.IPAddress] = st.Count
		}
		assert.Equal(t, int64(2), byIP["10.0.0.1"])
		assert.Equal(t, int64(1), byIP["10.0.0.2"])
	})
}
