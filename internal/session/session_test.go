package session

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestNew(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	sm := New(db, true)

	if sm.Lifetime != 24*time.Hour {
		t.Errorf("Lifetime = %v; want 24h", sm.Lifetime)
	}
	if !sm.Cookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if sm.Cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v; want Lax", sm.Cookie.SameSite)
	}
	if sm.Cookie.Secure {
		t.Error("development cookies should not require Secure")
	}

	prod := New(db, false)
	if !prod.Cookie.Secure {
		t.Error("production cookies must be Secure")
	}
}
