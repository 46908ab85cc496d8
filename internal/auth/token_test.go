package auth

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killswitch/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	return NewTokenService(testSecret, time.Hour, 7*24*time.Hour, slog.Default())
}

func testUser() *store.User {
	return &store.User{ID: 42, Username: "admin", Active: true}
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Issue(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := svc.Verify(pair.AccessToken, TokenTypeAccess, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, TokenTypeAccess, claims.Type)

	claims, err = svc.Verify(pair.RefreshToken, TokenTypeRefresh, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.Type)
}

func TestVerify_TypeMismatch(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Issue(testUser())
	require.NoError(t, err)

	// An access token never verifies as refresh, and vice versa.
	_, err = svc.Verify(pair.AccessToken, TokenTypeRefresh, "10.0.0.1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Verify(pair.RefreshToken, TokenTypeAccess, "10.0.0.1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerify_OpaqueFailures(t *testing.T) {
	svc := newTestService(t)

	expired := NewTokenService(testSecret, -time.Minute, -time.Second, slog.Default())
	pair, err := expired.Issue(testUser())
	require.NoError(t, err)

	valid, err2 := svc.Issue(testUser())
	require.NoError(t, err2)
	corrupted := valid.AccessToken[:len(valid.AccessToken)-4] + "AAAA"

	tests := []struct {
		name  string
		token string
	}{
		{"expired token", pair.AccessToken},
		{"corrupted signature", corrupted},
		{"malformed token", "not-a-jwt"},
		{"wrong secret", signedWithOtherSecret(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token, TokenTypeAccess, "10.0.0.1")
			// Every failure collapses to the same opaque outcome.
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func signedWithOtherSecret(t *testing.T) string {
	t.Helper()
	other := NewTokenService(strings.Repeat("x", 32), time.Hour, 2*time.Hour, slog.Default())
	pair, err := other.Issue(testUser())
	require.NoError(t, err)
	return pair.AccessToken
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
