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
	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/render"
	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/upload"
	"github.com/penlight/penlight/internal/util"
)

// ProfileArticlesLimit caps the article list on the profile page.
const ProfileArticlesLimit = 50

// ProfileHandler handles the signed-in user's profile pages.
type ProfileHandler struct {
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
	uploads        *upload.Store
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(db *sql.DB, renderer *render.Renderer, sm *scs.SessionManager, uploads *upload.Store) *ProfileHandler {
	return &ProfileHandler{
		queries:        store.New(db),
		renderer:       renderer,
		sessionManager: sm,
		uploads:        uploads,
	}
}

// ProfileData holds data for the profile templates.
type ProfileData struct {
	Profile    *store.User
	Articles   []store.Article
	Errors     map[string]string
	FormValues map[string]string
}

// Show handles GET /profile.
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	articles, err := h.queries.ListArticlesByAuthor(r.Context(), store.ListArticlesByAuthorParams{
		CreatedBy: user.ID,
		Limit:     ProfileArticlesLimit,
	})
	if err != nil {
		logAndInternalError(w, "failed to list user articles", "error", err, "user_id", user.ID)
		return
	}

	h.renderer.Render(w, r, "profile_show", render.TemplateData{
		Title: "Profile",
		Data:  ProfileData{Profile: user, Articles: articles},
	})
}

// EditForm handles GET /profile/edit.
func (h *ProfileHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	h.renderer.Render(w, r, "profile_edit", render.TemplateData{
		Title: "Edit Profile",
		Data: ProfileData{
			Profile:    user,
			Errors:     make(map[string]string),
			FormValues: make(map[string]string),
		},
	})
}

// Edit handles POST /profile/edit. A new profile image follows the same
// replacement order as article images: write, repoint, then best-effort
// removal of the previous file.
func (h *ProfileHandler) Edit(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	if err := r.ParseMultipartForm(upload.MaxUploadSize + 1<<20); err != nil {
		flashAndRedirect(w, r, h.renderer, "Invalid form submission.", "error", "/profile/edit")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))

	formValues := map[string]string{"name": name, "email": email}
	validationErrors := make(map[string]string)

	if len(name) < 2 {
		validationErrors["name"] = "Name must be at least 2 characters"
	}
	if email == "" {
		validationErrors["email"] = "Email is required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		validationErrors["email"] = "Email address is not valid"
	} else if email != user.Email {
		if other, err := h.queries.GetUserByEmail(r.Context(), email); err == nil && other.ID != user.ID {
			validationErrors["email"] = "An account with this email already exists"
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			logAndInternalError(w, "failed to check email uniqueness", "error", err)
			return
		}
	}

	var saved *upload.SavedFile
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		saved, err = h.uploads.ProcessAndSave(upload.KindProfile, user.Name, header.Filename, file)
		if err != nil {
			slog.Warn("profile image rejected", "error", err, "filename", header.Filename)
			validationErrors["image"] = "The file must be an image (JPEG, PNG, GIF, or WebP) up to 10 MB."
		}
	case errors.Is(err, http.ErrMissingFile):
		// no new image
	default:
		validationErrors["image"] = "Could not read the uploaded file."
	}

	if len(validationErrors) > 0 {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		h.renderer.Render(w, r, "profile_edit", render.TemplateData{
			Title: "Edit Profile",
			Data: ProfileData{
				Profile:    user,
				Errors:     validationErrors,
				FormValues: formValues,
			},
		})
		return
	}

	now := time.Now()
	if _, err := h.queries.UpdateUserProfile(r.Context(), store.UpdateUserProfileParams{
		Name:      name,
		Email:     email,
		UpdatedAt: now,
		ID:        user.ID,
	}); err != nil {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		logAndInternalError(w, "failed to update profile", "error", err, "user_id", user.ID)
		return
	}

	if saved != nil {
		if _, err := h.queries.UpdateUserImage(r.Context(), store.UpdateUserImageParams{
			ImagePath:         util.NullString(saved.Path),
			ImageOriginalName: util.NullString(saved.OriginalName),
			UpdatedAt:         now,
			ID:                user.ID,
		}); err != nil {
			h.uploads.RemoveQuietly(saved.Path)
			logAndInternalError(w, "failed to update profile image", "error", err, "user_id", user.ID)
			return
		}
		if user.ImagePath.Valid {
			h.uploads.RemoveQuietly(user.ImagePath.String)
		}
	}

	slog.Info("profile updated", "user_id", user.ID)
	flashAndRedirect(w, r, h.renderer, "Profile updated.", "success", redirectProfile)
}

// PasswordForm handles GET /profile/password.
func (h *ProfileHandler) PasswordForm(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	h.renderer.Render(w, r, "profile_password", render.TemplateData{
		Title: "Change Password",
		Data:  ProfileData{Profile: user, Errors: make(map[string]string)},
	})
}

// Password handles POST /profile/password.
func (h *ProfileHandler) Password(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	if err := r.ParseForm(); err != nil {
		flashAndRedirect(w, r, h.renderer, "Invalid form submission.", "error", "/profile/password")
		return
	}

	currentPassword := r.FormValue("current_password")
	password := r.FormValue("password")
	passwordConfirm := r.FormValue("password_confirm")

	validationErrors := make(map[string]string)
	valid, err := auth.CheckPassword(currentPassword, user.PasswordHash)
	if err != nil {
		slog.Warn("failed to verify password hash", "error", err, "user_id", user.ID)
	}
	if !valid {
		validationErrors["current_password"] = "Current password is incorrect"
	}
	if len(password) < MinPasswordLength {
		validationErrors["password"] = "Password must be at least 8 characters"
	} else if password != passwordConfirm {
		validationErrors["password_confirm"] = "Passwords do not match"
	}

	if len(validationErrors) > 0 {
		h.renderer.Render(w, r, "profile_password", render.TemplateData{
			Title: "Change Password",
			Data:  ProfileData{Profile: user, Errors: validationErrors},
		})
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logAndInternalError(w, "failed to hash password", "error", err)
		return
	}

	if err := h.queries.UpdateUserPassword(r.Context(), store.UpdateUserPasswordParams{
		PasswordHash: hash,
		UpdatedAt:    time.Now(),
		ID:           user.ID,
	}); err != nil {
		logAndInternalError(w, "failed to update password", "error", err, "user_id", user.ID)
		return
	}

	slog.Info("password changed", "user_id", user.ID)
	flashAndRedirect(w, r, h.renderer, "Password changed.", "success", redirectProfile)
}
