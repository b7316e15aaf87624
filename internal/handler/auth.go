package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/penlight/penlight/internal/auth"
	"github.com/penlight/penlight/internal/model"
	"github.com/penlight/penlight/internal/render"
	"github.com/penlight/penlight/internal/service"
	"github.com/penlight/penlight/internal/session"
	"github.com/penlight/penlight/internal/store"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// AuthHandler handles login, logout and registration.
type AuthHandler struct {
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
	events         *service.EventService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(db *sql.DB, renderer *render.Renderer, sm *scs.SessionManager, events *service.EventService) *AuthHandler {
	return &AuthHandler{
		queries:        store.New(db),
		renderer:       renderer,
		sessionManager: sm,
		events:         events,
	}
}

// AuthFormData holds data for the login and register templates.
type AuthFormData struct {
	Errors     map[string]string
	FormValues map[string]string
}

// LoginForm handles GET /login.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionManager.Exists(r.Context(), session.KeyUserID) {
		http.Redirect(w, r, redirectHome, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, "login", render.TemplateData{
		Title: "Sign In",
		Data:  AuthFormData{Errors: make(map[string]string), FormValues: make(map[string]string)},
	})
}

// Login handles POST /login. Unknown email and wrong password produce the
// same message so the form does not reveal which accounts exist.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		flashAndRedirect(w, r, h.renderer, "Invalid form submission.", "error", redirectLogin)
		return
	}

	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	password := r.FormValue("password")

	formValues := map[string]string{"email": email}
	validationErrors := make(map[string]string)
	if email == "" {
		validationErrors["email"] = "Email is required"
	}
	if password == "" {
		validationErrors["password"] = "Password is required"
	}
	if len(validationErrors) > 0 {
		h.renderLogin(w, r, validationErrors, formValues)
		return
	}

	user, err := h.queries.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.events.LogAuth(r, service.EventLoginFailed, 0, "warn")
			h.renderLogin(w, r, map[string]string{"form": "Invalid email or password"}, formValues)
			return
		}
		logAndInternalError(w, "failed to look up user", "error", err)
		return
	}

	valid, err := auth.CheckPassword(password, user.PasswordHash)
	if err != nil {
		// An undecodable stored hash fails authentication like a mismatch
		slog.Warn("failed to verify password hash", "error", err, "user_id", user.ID)
	}
	if !valid {
		h.events.LogAuth(r, service.EventLoginFailed, user.ID, "warn")
		h.renderLogin(w, r, map[string]string{"form": "Invalid email or password"}, formValues)
		return
	}

	if auth.NeedsRehash(user.PasswordHash) {
		if newHash, hashErr := auth.HashPassword(password); hashErr == nil {
			updErr := h.queries.UpdateUserPassword(r.Context(), store.UpdateUserPasswordParams{
				PasswordHash: newHash,
				UpdatedAt:    time.Now(),
				ID:           user.ID,
			})
			if updErr != nil {
				slog.Warn("failed to rehash password", "error", updErr, "user_id", user.ID)
			}
		}
	}

	if err := h.queries.UpdateUserLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("failed to record last login", "error", err, "user_id", user.ID)
	}

	// Session fixation guard: new token on privilege change
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "failed to renew session token", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), session.KeyUserID, user.ID)

	h.events.LogAuth(r, service.EventLogin, user.ID, "info")
	slog.Info("user logged in", "user_id", user.ID)

	flashAndRedirect(w, r, h.renderer, "Welcome back, "+user.Name+".", "success", redirectHome)
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if userID := h.sessionManager.GetInt64(r.Context(), session.KeyUserID); userID != 0 {
		h.events.LogAuth(r, service.EventLogout, userID, "info")
	}

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		logAndInternalError(w, "failed to destroy session", "error", err)
		return
	}

	http.Redirect(w, r, redirectLogin, http.StatusSeeOther)
}

// RegisterForm handles GET /register.
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionManager.Exists(r.Context(), session.KeyUserID) {
		http.Redirect(w, r, redirectHome, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, "register", render.TemplateData{
		Title: "Create Account",
		Data:  AuthFormData{Errors: make(map[string]string), FormValues: make(map[string]string)},
	})
}

// Register handles POST /register. New accounts get the member role and are
// signed in immediately.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		flashAndRedirect(w, r, h.renderer, "Invalid form submission.", "error", "/register")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	password := r.FormValue("password")
	passwordConfirm := r.FormValue("password_confirm")

	formValues := map[string]string{"name": name, "email": email}
	validationErrors := validateRegistration(name, email, password, passwordConfirm)

	if validationErrors["email"] == "" {
		if _, err := h.queries.GetUserByEmail(r.Context(), email); err == nil {
			validationErrors["email"] = "An account with this email already exists"
		} else if !errors.Is(err, sql.ErrNoRows) {
			logAndInternalError(w, "failed to check email uniqueness", "error", err)
			return
		}
	}

	if len(validationErrors) > 0 {
		h.renderer.Render(w, r, "register", render.TemplateData{
			Title: "Create Account",
			Data:  AuthFormData{Errors: validationErrors, FormValues: formValues},
		})
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logAndInternalError(w, "failed to hash password", "error", err)
		return
	}

	now := time.Now()
	user, err := h.queries.CreateUser(r.Context(), store.CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		logAndInternalError(w, "failed to create user", "error", err)
		return
	}

	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "failed to renew session token", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), session.KeyUserID, user.ID)

	h.events.LogAuth(r, service.EventRegistered, user.ID, "info")
	slog.Info("user registered", "user_id", user.ID)

	flashAndRedirect(w, r, h.renderer, "Welcome, "+user.Name+".", "success", redirectHome)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, validationErrors, formValues map[string]string) {
	h.renderer.Render(w, r, "login", render.TemplateData{
		Title: "Sign In",
		Data:  AuthFormData{Errors: validationErrors, FormValues: formValues},
	})
}

func validateRegistration(name, email, password, passwordConfirm string) map[string]string {
	validationErrors := make(map[string]string)

	if len(name) < 2 {
		validationErrors["name"] = "Name must be at least 2 characters"
	}

	if email == "" {
		validationErrors["email"] = "Email is required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		validationErrors["email"] = "Email address is not valid"
	}

	if len(password) < MinPasswordLength {
		validationErrors["password"] = "Password must be at least 8 characters"
	} else if password != passwordConfirm {
		validationErrors["password_confirm"] = "Passwords do not match"
	}

	return validationErrors
}
