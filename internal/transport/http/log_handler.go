package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"killswitch/internal/errors"
	"killswitch/internal/store"
)

// LogHandler exposes the audit trail to authenticated operators.
type LogHandler struct {
	logs   *store.RequestLogStore
	logger *slog.Logger
}

func NewLogHandler(logs *store.RequestLogStore, logger *slog.Logger) *LogHandler {
	return &LogHandler{
		logs:   logs,
		logger: logger.With(slog.String("handler", "logs")),
	}
}

// Routes returns the /logs router. The caller mounts it behind the auth gate.
func (h *LogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/statsByUniqueIP", h.StatsByUniqueIP)
	return r
}

// daysParam reads the optional ?days= window, defaulting to one day.
func daysParam(r *http.Request) (int, *errors.APIError) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 1, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		return 0, errors.ErrValidation("days", "days must be a positive integer")
	}
	return days, nil
}

// List handles GET /logs.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	days, apiErr := daysParam(r)
	if apiErr != nil {
		renderError(w, r, apiErr)
		return
	}

	logs, err := h.logs.ListSince(r.Context(), days)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if logs == nil {
		logs = []store.RequestLog{}
	}
	render.JSON(w, r, logs)
}

// Stats handles GET /logs/stats.
func (h *LogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.renderStats(w, r, h.logs.StatsSince)
}

// StatsByUniqueIP handles GET /logs/statsByUniqueIP.
func (h *LogHandler) StatsByUniqueIP(w http.ResponseWriter, r *http.Request) {
	h.renderStats(w, r, h.logs.StatsByIPSince)
}

func (h *LogHandler) renderStats(w http.ResponseWriter, r *http.Request, query func(ctx context.Context, days int) ([]store.EndpointStat, error)) {
	days, apiErr := daysParam(r)
	if apiErr != nil {
		renderError(w, r, apiErr)
		return
	}

	stats, err := query(r.Context(), days)
	if err != nil {
		renderError(w, r, errors.InternalError(err))
		return
	}
	if stats == nil {
		stats = []store.EndpointStat{}
	}
	render.JSON(w, r, stats)
}
