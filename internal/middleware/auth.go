// Package middleware provides HTTP middleware: session authentication,
// bearer-token authentication for the API, rate limiting, and CSRF
// protection.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/penlight/penlight/internal/session"
	"github.com/penlight/penlight/internal/store"
)

// ContextKey is the type for request context keys set by this package.
type ContextKey string

// ContextKeyUser holds the authenticated *store.User.
const ContextKeyUser ContextKey = "user"

// Auth requires a logged-in session. Unauthenticated requests are redirected
// to the login page with a flash message.
func Auth(sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sm.GetInt64(r.Context(), session.KeyUserID) == 0 {
				sm.Put(r.Context(), session.KeyFlash, "Please log in first.")
				sm.Put(r.Context(), session.KeyFlashType, "error")
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoadUser resolves the session user and stores it in the request context.
// A session pointing at a deleted user is destroyed.
func LoadUser(sm *scs.SessionManager, db *sql.DB) func(http.Handler) http.Handler {
	queries := store.New(db)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sm.GetInt64(r.Context(), session.KeyUserID)
			if userID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			user, err := queries.GetUserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					_ = sm.Destroy(r.Context())
				} else {
					slog.Error("failed to load session user", "error", err, "user_id", userID)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the authenticated user from the request context, or nil.
func GetUser(r *http.Request) *store.User {
	user, _ := r.Context().Value(ContextKeyUser).(*store.User)
	return user
}

// GetUserID returns the authenticated user's ID, or 0.
func GetUserID(r *http.Request) int64 {
	if user := GetUser(r); user != nil {
		return user.ID
	}
	return 0
}

// WithUser returns a request whose context carries user. Test helper shared
// by handler packages.
func WithUser(r *http.Request, user *store.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ContextKeyUser, user))
}
