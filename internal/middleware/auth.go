package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"killswitch/internal/auth"
	"killswitch/internal/errors"
)

type contextKey string

// claimsKey is the context key for verified session claims.
const claimsKey contextKey = "session_claims"

// RequireAuth extracts and verifies a bearer access token before the handler
// runs. Upgrade-style streaming requests under /wss carry the token in the
// protocol-negotiation header instead of Authorization. On success the
// verified claims are attached to the request context; every failure mode is
// a plain 401 before the handler is invoked.
func RequireAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.HasPrefix(r.URL.Path, "/wss") {
				header = r.Header.Get("Sec-WebSocket-Protocol")
			}

			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				render.Render(w, r, errors.NewErrorResponse(errors.ErrUnauthorized))
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			claims, err := tokens.Verify(token, auth.TokenTypeAccess, ClientIP(r))
			if err != nil {
				render.Render(w, r, errors.NewErrorResponse(errors.ErrUnauthorized))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the verified session claims attached by
// RequireAuth.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}
