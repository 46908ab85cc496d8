package http

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"killswitch/internal/errors"
	"killswitch/internal/license"
	"killswitch/internal/store"
)

// ServiceHandler handles the admin service endpoints. Every successful
// mutation triggers a snapshot rebuild so the validation path converges on
// the new state.
type ServiceHandler struct {
	services *store.ServiceStore
	cache    *license.Cache
	logger   *slog.Logger
}

func NewServiceHandler(services *store.ServiceStore, cache *license.Cache, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{
		services: services,
		cache:    cache,
		logger:   logger.With(slog.String("handler", "service")),
	}
}

// Routes returns the /services router. The caller mounts it behind the auth
// gate; every endpoint here is a mutating or admin-view operation.
func (h *ServiceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/list", h.List)
	r.Put("/create", h.Create)
	r.Patch("/update", h.Update)
	return r
}

// List handles GET /services/list. The admin view reads from the store, not
// the snapshot.
func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	services, err := h.services.List(r.Context())
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if services == nil {
		services = []store.Service{}
	}
	render.JSON(w, r, services)
}

type serviceCreateRequest struct {
	Name   string `json:"name"`
	Client string `json:"client"`
	Email  string `json:"email" validate:"omitempty,email"`
	Active *bool  `json:"active"`
}

func (s *serviceCreateRequest) Bind(r *http.Request) error {
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Client) == "" {
		return stderrors.New("name and client are required")
	}
	return validate.Struct(s)
}

// Create handles PUT /services/create.
func (h *ServiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := &serviceCreateRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	service, err := h.services.Insert(r.Context(), &store.Service{
		Name:   req.Name,
		Client: req.Client,
		Email:  req.Email,
		Active: active,
	})
	if err != nil {
		renderError(w, r, mapStoreError(err, "Service"))
		return
	}

	if err := h.rebuild(r); err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "service created",
		slog.Int64("id", service.ID),
		slog.String("name", service.Name))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, service)
}

type serviceUpdateRequest struct {
	ID     int64   `json:"id"`
	Name   *string `json:"name"`
	Client *string `json:"client"`
	Email  *string `json:"email"`
	Active *bool   `json:"active"`
}

func (s *serviceUpdateRequest) Bind(r *http.Request) error {
	if s.ID == 0 {
		return stderrors.New("an id is required")
	}
	if s.Email != nil && *s.Email != "" {
		type emailOnly struct {
			Email string `validate:"email"`
		}
		return validate.Struct(emailOnly{Email: *s.Email})
	}
	return nil
}

// Update handles PATCH /services/update. Absent fields keep their current
// values.
func (h *ServiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	req := &serviceUpdateRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	service, err := h.services.GetByID(r.Context(), req.ID)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if service == nil {
		renderError(w, r, errors.ErrServiceNotFound)
		return
	}

	if req.Name != nil && *req.Name != "" {
		service.Name = *req.Name
	}
	if req.Client != nil && *req.Client != "" {
		service.Client = *req.Client
	}
	if req.Email != nil {
		service.Email = *req.Email
	}
	if req.Active != nil {
		service.Active = *req.Active
	}

	updated, err := h.services.Update(r.Context(), service)
	if err != nil {
		renderError(w, r, mapStoreError(err, "Service"))
		return
	}

	if err := h.rebuild(r); err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "service updated",
		slog.Int64("id", updated.ID))
	render.JSON(w, r, updated)
}

// rebuild refreshes the validation snapshot after a successful write. On
// failure the record is persisted but the previous snapshot stays
// authoritative; the caller sees a 500 and may retry.
func (h *ServiceHandler) rebuild(r *http.Request) error {
	if err := h.cache.Rebuild(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "snapshot rebuild failed",
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
