package http

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"killswitch/internal/auth"
	"killswitch/internal/errors"
	"killswitch/internal/middleware"
	"killswitch/internal/store"
)

// AuthHandler handles login, refresh, registration and password reset.
type AuthHandler struct {
	users             *store.UserStore
	tokens            *auth.TokenService
	allowRegistration bool
	logger            *slog.Logger
}

func NewAuthHandler(users *store.UserStore, tokens *auth.TokenService, allowRegistration bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:             users,
		tokens:            tokens,
		allowRegistration: allowRegistration,
		logger:            logger.With(slog.String("handler", "auth")),
	}
}

// Routes returns the /auth router. All endpoints here are unauthenticated
// except resetPassword, which the caller mounts behind the auth gate.
func (h *AuthHandler) Routes(gate func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/register", h.Register)
	r.With(gate).Post("/resetPassword", h.ResetPassword)
	return r
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *credentialsRequest) Bind(r *http.Request) error {
	if strings.TrimSpace(c.Username) == "" || strings.TrimSpace(c.Password) == "" {
		return stderrors.New("username and password are required")
	}
	return nil
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req := &credentialsRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	ip := middleware.ClientIP(r)

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if user == nil || !auth.CheckPassword(user.Password, req.Password) {
		h.logger.WarnContext(r.Context(), "login rejected",
			slog.String("username", req.Username),
			slog.String("ip", ip))
		renderError(w, r, errors.ErrUnauthorized)
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "user logged in",
		slog.String("username", user.Username),
		slog.String("ip", ip))
	render.JSON(w, r, pair)
}

type refreshRequest struct {
	Token string `json:"token"`
}

func (t *refreshRequest) Bind(r *http.Request) error {
	if strings.TrimSpace(t.Token) == "" {
		return stderrors.New("token is required")
	}
	return nil
}

// Refresh handles POST /auth/refresh: a valid refresh token is exchanged for
// a fresh token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	req := &refreshRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	ip := middleware.ClientIP(r)

	claims, err := h.tokens.Verify(req.Token, auth.TokenTypeRefresh, ip)
	if err != nil {
		renderError(w, r, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByUsername(r.Context(), claims.Username)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if user == nil {
		renderError(w, r, errors.ErrUnauthorized)
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "token pair refreshed",
		slog.String("username", user.Username),
		slog.String("ip", ip))
	render.JSON(w, r, pair)
}

// Register handles POST /auth/register. Gated by configuration: deployments
// with registration disabled reject with 403.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req := &credentialsRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	if !h.allowRegistration {
		renderError(w, r, errors.ErrRegistrationDisabled)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	user, err := h.users.Insert(r.Context(), req.Username, hash)
	if err != nil {
		if stderrors.Is(err, store.ErrConflict) {
			renderError(w, r, errors.ConflictError("Username already exists"))
			return
		}
		renderError(w, r, errors.InternalError(err))
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "user registered",
		slog.String("username", user.Username))
	render.JSON(w, r, pair)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (p *resetPasswordRequest) Bind(r *http.Request) error {
	if strings.TrimSpace(p.Password) == "" {
		return stderrors.New("new password is required")
	}
	return nil
}

// ResetPassword handles POST /auth/resetPassword. The caller's identity comes
// from the verified access token. Previously issued access tokens stay valid
// for their remaining lifetime; there is no revocation.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		renderError(w, r, errors.ErrUnauthorized)
		return
	}

	req := &resetPasswordRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	if err := h.users.UpdatePassword(r.Context(), claims.Username, hash); err != nil {
		renderError(w, r, mapStoreError(err, "User"))
		return
	}

	user, err := h.users.GetByUsername(r.Context(), claims.Username)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if user == nil {
		renderError(w, r, errors.ErrUserNotFound)
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "password reset",
		slog.String("username", user.Username))
	render.JSON(w, r, pair)
}
