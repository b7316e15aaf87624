package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/penlight/penlight/internal/auth"
	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/service"
	"github.com/penlight/penlight/internal/store"
)

// AuthHandler issues and introspects API access tokens.
type AuthHandler struct {
	queries *store.Queries
	issuer  *auth.TokenIssuer
	events  *service.EventService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(db *sql.DB, issuer *auth.TokenIssuer, events *service.EventService) *AuthHandler {
	return &AuthHandler{
		queries: store.New(db),
		issuer:  issuer,
		events:  events,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login handles POST /api/auth/login. It exchanges credentials for a bearer
// token. Unknown email and wrong password return the same error.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Request body must be valid JSON.")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	details := make(map[string]string)
	if req.Email == "" {
		details["email"] = "Email is required"
	}
	if req.Password == "" {
		details["password"] = "Password is required"
	}
	if len(details) > 0 {
		WriteValidationError(w, details)
		return
	}

	user, err := h.queries.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.events.LogAuth(r, service.EventLoginFailed, 0, "warn")
			WriteUnauthorized(w, "Invalid email or password.")
			return
		}
		WriteInternalError(w, "failed to look up user", "error", err)
		return
	}

	valid, err := auth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		// An undecodable stored hash fails authentication like a mismatch
		slog.Warn("failed to verify password hash", "error", err, "user_id", user.ID)
	}
	if !valid {
		h.events.LogAuth(r, service.EventLoginFailed, user.ID, "warn")
		WriteUnauthorized(w, "Invalid email or password.")
		return
	}

	token, _, err := h.issuer.Issue(user.ID, user.Name, user.IsAdmin())
	if err != nil {
		WriteInternalError(w, "failed to issue token", "error", err, "user_id", user.ID)
		return
	}

	if err := h.queries.UpdateUserLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("failed to record last login", "error", err, "user_id", user.ID)
	}
	h.events.LogAuth(r, service.EventLogin, user.ID, "info")

	WriteSuccess(w, LoginResponse{
		AccessToken: token,
		TokenType:   auth.TokenType,
		ExpiresIn:   int64(h.issuer.TTL().Seconds()),
	})
}

// UserResponse is the JSON shape of a user.
type UserResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ImagePath string `json:"image_path,omitempty"`
	CreatedAt string `json:"created_at"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		ImagePath: u.ImagePath.String,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Me handles GET /api/auth/me. It returns the token's user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		WriteUnauthorized(w, "Authentication required.")
		return
	}
	WriteSuccess(w, userResponse(user))
}
