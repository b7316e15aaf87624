package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/penlight/penlight/internal/auth"
	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/model"
	"github.com/penlight/penlight/internal/service"
	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/upload"
)

type apiEnv struct {
	db      *sql.DB
	queries *store.Queries
	issuer  *auth.TokenIssuer
	uploads *upload.Store
	mux     *chi.Mux
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	issuer := auth.NewTokenIssuer("test-secret-test-secret-test-secret", time.Hour)
	uploads, err := upload.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("building upload store: %v", err)
	}
	events := service.NewEventService(db, nil)

	authH := NewAuthHandler(db, issuer, events)
	articles := NewArticlesHandler(db, uploads, events, nil)

	mux := chi.NewRouter()
	mux.Post("/api/auth/login", authH.Login)
	mux.Get("/api/articles", articles.List)
	mux.Get("/api/articles/{id}", articles.Get)
	mux.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(issuer, db))
		r.Get("/api/auth/me", authH.Me)
		r.Post("/api/articles", articles.Create)
		r.Put("/api/articles/{id}", articles.Update)
		r.Delete("/api/articles/{id}", articles.Delete)
	})

	return &apiEnv{
		db:      db,
		queries: store.New(db),
		issuer:  issuer,
		uploads: uploads,
		mux:     mux,
	}
}

func (te *apiEnv) createUser(t *testing.T, name, email, password, role string) store.User {
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

func (te *apiEnv) token(t *testing.T, user store.User) string {
	t.Helper()

	token, _, err := te.issuer.Issue(user.ID, user.Name, user.Role == model.RoleAdmin)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return token
}

func (te *apiEnv) createArticle(t *testing.T, author int64, title string, published bool) store.Article {
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

func (te *apiEnv) request(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	te.mux.ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding envelope: %v; body: %.300s", err, rr.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

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

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()

	var envelope ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v; body: %.300s", err, rr.Body.String())
	}
	if envelope.Error.Code != want {
		t.Fatalf("error code = %q, want %q", envelope.Error.Code, want)
	}
}
