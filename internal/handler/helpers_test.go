package handler

import (
	"bytes"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/penlight/penlight/internal/auth"
	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/model"
	"github.com/penlight/penlight/internal/render"
	"github.com/penlight/penlight/internal/service"
	"github.com/penlight/penlight/internal/session"
	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/upload"
	"github.com/penlight/penlight/web"
)

type testEnv struct {
	db             *sql.DB
	queries        *store.Queries
	sessionManager *scs.SessionManager
	uploads        *upload.Store
	uploadDir      string
	mux            *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sm := session.New(db, true)

	renderer, err := render.New(web.Templates, sm, false)
	if err != nil {
		t.Fatalf("building renderer: %v", err)
	}

	uploadDir := t.TempDir()
	uploads, err := upload.NewStore(uploadDir)
	if err != nil {
		t.Fatalf("building upload store: %v", err)
	}

	events := service.NewEventService(db, nil)

	articles := NewArticlesHandler(db, renderer, sm, uploads, events, nil)
	authH := NewAuthHandler(db, renderer, sm, events)
	profile := NewProfileHandler(db, renderer, sm, uploads)

	mux := chi.NewRouter()
	mux.Use(sm.LoadAndSave)
	mux.Get("/", articles.List)
	mux.Get("/articles/new", articles.NewForm)
	mux.Post("/articles", articles.Create)
	mux.Get("/articles/{id}", articles.Show)
	mux.Get("/articles/{id}/edit", articles.EditForm)
	mux.Post("/articles/{id}", articles.Update)
	mux.Post("/articles/{id}/delete", articles.Delete)
	mux.Get("/login", authH.LoginForm)
	mux.Post("/login", authH.Login)
	mux.Post("/logout", authH.Logout)
	mux.Get("/register", authH.RegisterForm)
	mux.Post("/register", authH.Register)
	mux.Get("/profile", profile.Show)
	mux.Get("/profile/edit", profile.EditForm)
	mux.Post("/profile/edit", profile.Edit)
	mux.Get("/profile/password", profile.PasswordForm)
	mux.Post("/profile/password", profile.Password)

	return &testEnv{
		db:             db,
		queries:        store.New(db),
		sessionManager: sm,
		uploads:        uploads,
		uploadDir:      uploadDir,
		mux:            mux,
	}
}

// serve runs a request through the test router. A non-nil user is placed in
// the request context the way LoadUser does in production.
func (te *testEnv) serve(t *testing.T, method, target string, user *store.User, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != nil {
		req = middleware.WithUser(req, user)
	}

	rr := httptest.NewRecorder()
	te.mux.ServeHTTP(rr, req)
	return rr
}

func (te *testEnv) createUser(t *testing.T, name, email, password, role string) store.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	now := time.Now()
	u, err := te.queries.CreateUser(t.Context(), store.CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	return u
}

func (te *testEnv) createMember(t *testing.T, name, email string) store.User {
	return te.createUser(t, name, email, "password123", model.RoleMember)
}

func (te *testEnv) createArticle(t *testing.T, author int64, title string, published bool) store.Article {
	t.Helper()

	now := time.Now()
	a, err := te.queries.CreateArticle(t.Context(), store.CreateArticleParams{
		Title:     title,
		Content:   "content of " + title,
		Published: published,
		CreatedBy: author,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("creating article %q: %v", title, err)
	}
	return a
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

// multipartForm builds a multipart body with the given fields and an
// optional file under the "image" field.
func multipartForm(t *testing.T, fields map[string]string, filename string, fileContent []byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field %s: %v", k, err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("creating file part: %v", err)
		}
		if _, err := part.Write(fileContent); err != nil {
			t.Fatalf("writing file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body: %.300s", rr.Code, want, rr.Body.String())
	}
}

func assertRedirect(t *testing.T, rr *httptest.ResponseRecorder, target string) {
	t.Helper()
	assertStatus(t, rr, http.StatusSeeOther)
	if got := rr.Header().Get("Location"); got != target {
		t.Fatalf("redirect location = %q, want %q", got, target)
	}
}
