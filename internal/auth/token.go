// Package auth issues and verifies the signed, stateless session tokens that
// gate every mutating operation. Tokens are HMAC-SHA256 signed with a single
// process-wide key; validity is determined purely by signature and expiry.
// There is no revocation: an issued access token stays valid for its full
// lifetime even after a password change.
package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"killswitch/internal/store"
)

// Token types carried in the claims "type" field.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrUnauthorized is the single opaque outcome for every verification
// failure: malformed token, bad signature, expired, wrong type. The concrete
// cause is logged server-side only.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the session claim set. The JSON field names are part of the wire
// contract with existing clients.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is an access/refresh token pair returned by login, refresh,
// registration and password reset.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService issues and verifies session token pairs.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
}

// NewTokenService creates a token service with the process-wide signing key.
// The key is immutable for the process lifetime.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, logger *slog.Logger) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger.With(slog.String("component", "token_service")),
	}
}

// Issue creates a new token pair for the user: an access token with the full
// claim set and the short TTL, and a refresh token carrying identity only
// with the long TTL.
func (s *TokenService) Issue(user *store.User) (*TokenPair, error) {
	now := time.Now()

	access, err := s.sign(Claims{
		UserID:   user.ID,
		Username: user.Username,
		Type:     TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	if err != nil {
		return nil, err
	}

	refresh, err := s.sign(Claims{
		UserID:   user.ID,
		Username: user.Username,
		Type:     TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the token signature, expiry and type. Every failure mode
// collapses to ErrUnauthorized; the cause is logged with the caller's IP.
func (s *TokenService) Verify(tokenString, expectedType, ip string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		s.logger.Warn("failed to verify token",
			slog.String("ip", ip),
			slog.String("error", err.Error()))
		return nil, ErrUnauthorized
	}

	if !token.Valid || claims.Type != expectedType {
		s.logger.Warn("token type mismatch",
			slog.String("ip", ip),
			slog.String("expected", expectedType))
		return nil, ErrUnauthorized
	}

	return claims, nil
}
