// Package http contains the chi HTTP handlers. This is the only layer that
// maps component outcomes to status codes and response bodies.
package http

import (
	"database/sql"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"killswitch/internal/errors"
	"killswitch/internal/store"
)

// validate checks struct tags on bound request payloads.
var validate = validator.New()

// renderError writes the standard error envelope.
func renderError(w http.ResponseWriter, r *http.Request, apiErr *errors.APIError) {
	render.Render(w, r, errors.NewErrorResponse(apiErr))
}

// mapStoreError converts store failures into API errors: uniqueness
// violations become conflicts, missing rows become not-found, everything
// else is internal.
func mapStoreError(err error, resource string) *errors.APIError {
	switch {
	case stderrors.Is(err, store.ErrConflict):
		return errors.ConflictError(resource + " already exists")
	case stderrors.Is(err, sql.ErrNoRows):
		return errors.NotFoundError(resource)
	default:
		return errors.InternalError(err)
	}
}
