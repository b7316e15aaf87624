package middleware

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	_ "modernc.org/sqlite"

	"github.com/penlight/penlight/internal/auth"
	"github.com/penlight/penlight/internal/model"
	"github.com/penlight/penlight/internal/session"
	"github.com/penlight/penlight/internal/store"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}

	schema := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			image_path TEXT,
			image_original_name TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at DATETIME
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insertUser(t *testing.T, db *sql.DB, name, email, role string) int64 {
	t.Helper()

	now := time.Now()
	res, err := db.Exec(
		`INSERT INTO users (name, email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		name, email, "x", role, now, now,
	)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := res.LastInsertId()
	return id
}

func sessionRequest(t *testing.T, sm *scs.SessionManager, userID int64) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/articles/new", nil)
	ctx, err := sm.Load(r.Context(), "")
	if err != nil {
		t.Fatal(err)
	}
	r = r.WithContext(ctx)
	if userID != 0 {
		sm.Put(r.Context(), session.KeyUserID, userID)
	}
	return r
}

func TestAuthRedirectsAnonymous(t *testing.T) {
	sm := scs.New()

	handler := Auth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run for anonymous request")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, sessionRequest(t, sm, 0))

	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d; want 303", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q; want /login", loc)
	}
}

func TestAuthPassesLoggedIn(t *testing.T) {
	sm := scs.New()
	called := false

	handler := Auth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, sessionRequest(t, sm, 7))

	if !called {
		t.Error("handler did not run for logged-in request")
	}
}

func TestLoadUser(t *testing.T) {
	db := testDB(t)
	sm := scs.New()
	id := insertUser(t, db, "Alice", "alice@example.com", model.RoleMember)

	var got *store.User
	handler := LoadUser(sm, db)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUser(r)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, sessionRequest(t, sm, id))

	if got == nil {
		t.Fatal("user not loaded into context")
	}
	if got.Name != "Alice" {
		t.Errorf("Name = %q", got.Name)
	}
	if GetUserID(sessionRequest(t, sm, 0)) != 0 {
		t.Error("GetUserID should be 0 without a user")
	}
}

func TestTokenAuth(t *testing.T) {
	db := testDB(t)
	issuer := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	id := insertUser(t, db, "Bob", "bob@example.com", model.RoleMember)

	var got *store.User
	handler := TokenAuth(issuer, db)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUser(r)
	}))

	t.Run("valid token", func(t *testing.T) {
		token, _, err := issuer.Issue(id, "Bob", false)
		if err != nil {
			t.Fatal(err)
		}

		r := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", w.Code)
		}
		if got == nil || got.ID != id {
			t.Errorf("context user = %+v; want ID %d", got, id)
		}
	})

	t.Run("lowercase scheme accepted", func(t *testing.T) {
		token, _, _ := issuer.Issue(id, "Bob", false)
		r := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		r.Header.Set("Authorization", "bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d; want 200", w.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d; want 401", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d; want 401", w.Code)
		}
	})

	t.Run("token for deleted user", func(t *testing.T) {
		token, _, _ := issuer.Issue(99999, "Ghost", false)
		r := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d; want 401", w.Code)
		}
	})
}

func TestLoginRateLimit(t *testing.T) {
	handler := LoginRateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 30; i++ {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = "10.1.2.3:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after hammering login, got %d", last)
	}

	// Another IP is unaffected
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "10.9.9.9:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("fresh IP got %d; want 200", w.Code)
	}
}
