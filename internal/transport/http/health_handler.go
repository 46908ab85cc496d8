package http

import (
	"net/http"

	"github.com/go-chi/render"
)

// Ping handles GET /ping. It answers as long as the process is serving; it
// does not probe the store.
func Ping(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"message": "pong"})
}
