// Package handler contains the server-rendered web handlers.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/penlight/penlight/internal/render"
)

// Common redirect targets.
const (
	redirectHome    = "/"
	redirectLogin   = "/login"
	redirectProfile = "/profile"
)

// flashAndRedirect sets a flash message and redirects with 303 See Other.
func flashAndRedirect(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, message, flashType, target string) {
	renderer.SetFlash(r, message, flashType)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// logAndInternalError logs the error and writes a plain 500.
func logAndInternalError(w http.ResponseWriter, msg string, args ...any) {
	slog.Error(msg, args...)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// parseIDParam reads the {id} URL parameter as int64. ok is false when the
// parameter is missing or not a positive integer.
func parseIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// parsePageParam reads the page query parameter, defaulting to 1.
func parsePageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
