package middleware

import (
	"bytes"
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/penlight/penlight/internal/session"
)

// PageStore is the slice of the page cache this middleware needs.
type PageStore interface {
	Enabled() bool
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte)
}

// PageCache serves anonymous GET responses from the cache and fills it on a
// miss, keyed by path and query. Requests with a signed-in user or a
// pending flash bypass it so personalized markup is never shared.
func PageCache(pages PageStore, sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pages.Enabled() || r.Method != http.MethodGet ||
				GetUser(r) != nil || sm.Exists(r.Context(), session.KeyFlash) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if body, ok := pages.Get(r.Context(), key); ok {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Header().Set("X-Cache", "HIT")
				_, _ = w.Write(body)
				return
			}

			rec := &bufferingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Only successful pages are worth replaying
			if rec.status == http.StatusOK {
				pages.Set(r.Context(), key, rec.buf.Bytes())
			}
		})
	}
}

// bufferingResponseWriter copies the response body while writing it through.
type bufferingResponseWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bufferingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bufferingResponseWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
