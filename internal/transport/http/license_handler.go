package http

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"killswitch/internal/errors"
	"killswitch/internal/license"
	"killswitch/internal/middleware"
	"killswitch/internal/store"
)

const (
	defaultGracePeriodMs = int64(86400000)
	minGracePeriodMs     = int64(3600000)
)

// LicenseHandler serves both sides of the license surface: the admin CRUD
// endpoints backed by the store, and the public validate endpoint backed by
// the snapshot.
type LicenseHandler struct {
	licenses  *store.LicenseStore
	services  *store.ServiceStore
	cache     *license.Cache
	validator *license.Validator
	logger    *slog.Logger
}

func NewLicenseHandler(licenses *store.LicenseStore, services *store.ServiceStore, cache *license.Cache, validator *license.Validator, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		licenses:  licenses,
		services:  services,
		cache:     cache,
		validator: validator,
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the /license router. Validate is public; everything else is
// mounted behind the auth gate by the caller.
func (h *LicenseHandler) Routes(gate func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/validate", h.Validate)
	r.With(gate).Get("/list", h.List)
	r.With(gate).Put("/create", h.Create)
	r.With(gate).Patch("/update", h.Update)
	return r
}

// licenseView is the admin and client-facing rendering of a license. The
// stored grace period duration is replaced by the absolute boundary computed
// from the current instant, which is what consumers persist.
type licenseView struct {
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	ServiceID      int64     `json:"service_id"`
	GracePeriod    time.Time `json:"grace_period"`
	Active         bool      `json:"active"`
	ExpirationDate time.Time `json:"expiration_date"`
	AutoRenew      bool      `json:"auto_renew"`
}

func viewOf(l *store.License, now time.Time) licenseView {
	return licenseView{
		Key:            l.Key,
		Name:           l.Name,
		ServiceID:      l.ServiceID,
		GracePeriod:    now.Add(time.Duration(l.GracePeriod) * time.Millisecond),
		Active:         l.Active,
		ExpirationDate: l.ExpirationDate,
		AutoRenew:      l.AutoRenew,
	}
}

// List handles GET /license/list. An optional service_id query parameter
// narrows the result to one service's licenses.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		licenses []store.License
		err      error
	)

	if raw := r.URL.Query().Get("service_id"); raw != "" {
		serviceID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			renderError(w, r, errors.ErrValidation("service_id", "service_id must be an integer"))
			return
		}
		service, getErr := h.services.GetByID(r.Context(), serviceID)
		if getErr != nil {
			renderError(w, r, errors.InternalError(getErr))
			return
		}
		if service == nil {
			renderError(w, r, errors.ErrServiceNotFound)
			return
		}
		licenses, err = h.licenses.ListByServiceID(r.Context(), serviceID)
	} else {
		licenses, err = h.licenses.List(r.Context())
	}
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	now := time.Now()
	views := make([]licenseView, 0, len(licenses))
	for i := range licenses {
		views = append(views, viewOf(&licenses[i], now))
	}
	render.JSON(w, r, views)
}

type licenseCreateRequest struct {
	Name           string     `json:"name"`
	ServiceID      int64      `json:"service_id"`
	GracePeriod    *int64     `json:"grace_period"`
	Active         *bool      `json:"active"`
	ExpirationDate *time.Time `json:"expiration_date"`
	AutoRenew      *bool      `json:"auto_renew"`
}

func (l *licenseCreateRequest) Bind(r *http.Request) error {
	if l.Name == "" || l.ServiceID == 0 {
		return stderrors.New("name and service_id are required")
	}
	return nil
}

// Create handles PUT /license/create. The key is always generated server
// side; client-supplied keys are never honored.
func (h *LicenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := &licenseCreateRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	grace := defaultGracePeriodMs
	if req.GracePeriod != nil {
		grace = *req.GracePeriod
	}
	if grace < minGracePeriodMs {
		renderError(w, r, errors.ErrValidation("grace_period", "Grace period must be at least 1 hour"))
		return
	}

	now := time.Now()
	expiration := now.AddDate(1, 0, 0)
	if req.ExpirationDate != nil {
		expiration = *req.ExpirationDate
	}
	if !expiration.After(now) {
		renderError(w, r, errors.ErrValidation("expiration_date", "Expiration date must be in the future"))
		return
	}

	service, err := h.services.GetByID(r.Context(), req.ServiceID)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if service == nil {
		renderError(w, r, errors.ErrServiceNotFound)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	autoRenew := false
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}

	created, err := h.licenses.Insert(r.Context(), &store.License{
		Key:            uuid.NewString(),
		Name:           req.Name,
		ServiceID:      req.ServiceID,
		GracePeriod:    grace,
		Active:         active,
		ExpirationDate: expiration,
		AutoRenew:      autoRenew,
	})
	if err != nil {
		renderError(w, r, mapStoreError(err, "License"))
		return
	}

	if err := h.rebuild(r); err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "license created",
		slog.String("key", created.Key),
		slog.Int64("service_id", created.ServiceID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, viewOf(created, now))
}

type licenseUpdateRequest struct {
	Key            string     `json:"key"`
	Name           *string    `json:"name"`
	ServiceID      *int64     `json:"service_id"`
	GracePeriod    *int64     `json:"grace_period"`
	Active         *bool      `json:"active"`
	ExpirationDate *time.Time `json:"expiration_date"`
	AutoRenew      *bool      `json:"auto_renew"`
}

func (l *licenseUpdateRequest) Bind(r *http.Request) error {
	if l.Key == "" {
		return stderrors.New("A key is required")
	}
	return nil
}

// Update handles PATCH /license/update. Absent fields keep their current
// values; the key itself is immutable and only identifies the record.
func (h *LicenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	req := &licenseUpdateRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	current, err := h.licenses.GetByKey(r.Context(), req.Key)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if current == nil {
		renderError(w, r, errors.ErrLicenseNotFound)
		return
	}

	if req.Name != nil && *req.Name != "" {
		current.Name = *req.Name
	}
	if req.ServiceID != nil {
		service, getErr := h.services.GetByID(r.Context(), *req.ServiceID)
		if getErr != nil {
			renderError(w, r, errors.InternalError(getErr))
			return
		}
		if service == nil {
			renderError(w, r, errors.ErrServiceNotFound)
			return
		}
		current.ServiceID = *req.ServiceID
	}
	if req.GracePeriod != nil {
		if *req.GracePeriod < minGracePeriodMs {
			renderError(w, r, errors.ErrValidation("grace_period", "Grace period must be at least 1 hour"))
			return
		}
		current.GracePeriod = *req.GracePeriod
	}
	if req.Active != nil {
		current.Active = *req.Active
	}
	if req.ExpirationDate != nil {
		if !req.ExpirationDate.After(time.Now()) {
			renderError(w, r, errors.ErrValidation("expiration_date", "Expiration date must be in the future"))
			return
		}
		current.ExpirationDate = *req.ExpirationDate
	}
	if req.AutoRenew != nil {
		current.AutoRenew = *req.AutoRenew
	}

	updated, err := h.licenses.Update(r.Context(), current)
	if err != nil {
		renderError(w, r, mapStoreError(err, "License"))
		return
	}

	if err := h.rebuild(r); err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "license updated",
		slog.String("key", updated.Key))
	render.JSON(w, r, viewOf(updated, time.Now()))
}

type validateRequest struct {
	Key string `json:"key"`
}

func (v *validateRequest) Bind(r *http.Request) error {
	return nil
}

// Validate handles POST /license/validate, the public hot path. It reads only
// the in-memory snapshot; rejections carry the chain's reason as the error
// code so clients can branch without parsing messages.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	req := &validateRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, errors.InvalidRequestWithError(err))
		return
	}

	clientID := r.Header.Get("Client")
	ip := middleware.ClientIP(r)

	result, rej := h.validator.Validate(clientID, req.Key, time.Now(), ip)
	if rej != nil {
		renderError(w, r, errors.New(rej.Status, rej.Reason, rej.Message))
		return
	}
	render.JSON(w, r, result)
}

func (h *LicenseHandler) rebuild(r *http.Request) error {
	if err := h.cache.Rebuild(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "snapshot rebuild failed",
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
