// Package render renders HTML pages from embedded templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/session"
	"github.com/penlight/penlight/internal/store"
)

// TemplateData is the payload every page template receives.
type TemplateData struct {
	Title       string
	User        *store.User
	Data        any
	Flash       string
	FlashType   string
	CurrentYear int
}

// Renderer holds parsed templates and session access for flash messages.
type Renderer struct {
	fsys           fs.FS
	templates      map[string]*template.Template
	sessionManager *scs.SessionManager
	isDev          bool
}

var sanitizer = bluemonday.UGCPolicy()

var markdown = goldmark.New()

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006 15:04")
		},
		"truncate": func(s string, n int) string {
			if len(s) <= n {
				return s
			}
			if n <= 3 {
				return s[:n]
			}
			return s[:n-3] + "..."
		},
		// markdown renders article content to sanitized HTML
		"markdown": func(s string) template.HTML {
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(s), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(s))
			}
			return template.HTML(sanitizer.SanitizeBytes(buf.Bytes()))
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"seq": func(from, to int) []int {
			if to < from {
				return nil
			}
			out := make([]int, 0, to-from+1)
			for i := from; i <= to; i++ {
				out = append(out, i)
			}
			return out
		},
	}
}

// New parses all page templates from fsys. Each page is parsed together
// with the base layout and partials.
func New(fsys fs.FS, sm *scs.SessionManager, isDev bool) (*Renderer, error) {
	r := &Renderer{
		fsys:           fsys,
		sessionManager: sm,
		isDev:          isDev,
	}
	if err := r.parseTemplates(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) parseTemplates() error {
	pages, err := fs.Glob(r.fsys, "templates/pages/*.html")
	if err != nil {
		return fmt.Errorf("globbing page templates: %w", err)
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		name := strings.TrimSuffix(path.Base(page), ".html")

		files := []string{
			"templates/layouts/base.html",
			page,
		}
		partials, err := fs.Glob(r.fsys, "templates/partials/*.html")
		if err != nil {
			return fmt.Errorf("globbing partials: %w", err)
		}
		files = append(files, partials...)

		tmpl, err := template.New(name).Funcs(templateFuncs()).ParseFS(r.fsys, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", page, err)
		}
		templates[name] = tmpl
	}

	r.templates = templates
	return nil
}

// Render writes a page to w. The session flash, current user, and year are
// filled in automatically. Output goes through a buffer so a template error
// can still become a clean 500.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, name string, data TemplateData) {
	// Reparse on every request during development
	if r.isDev {
		if err := r.parseTemplates(); err != nil {
			slog.Error("failed to reparse templates", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	tmpl, ok := r.templates[name]
	if !ok {
		slog.Error("unknown template", "name", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if data.User == nil {
		data.User = middleware.GetUser(req)
	}
	data.CurrentYear = time.Now().Year()
	if r.sessionManager != nil {
		data.Flash = r.sessionManager.PopString(req.Context(), session.KeyFlash)
		data.FlashType = r.sessionManager.PopString(req.Context(), session.KeyFlashType)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		slog.Error("failed to execute template", "name", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// RenderStatus renders a page with an explicit HTTP status code.
func (r *Renderer) RenderStatus(w http.ResponseWriter, req *http.Request, status int, name string, data TemplateData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	tmpl, ok := r.templates[name]
	if !ok {
		return
	}
	if data.User == nil {
		data.User = middleware.GetUser(req)
	}
	data.CurrentYear = time.Now().Year()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		slog.Error("failed to execute template", "name", name, "error", err)
		return
	}
	_, _ = buf.WriteTo(w)
}

// ErrorPage renders the shared error page with the given status.
func (r *Renderer) ErrorPage(w http.ResponseWriter, req *http.Request, status int, message string) {
	r.RenderStatus(w, req, status, "error", TemplateData{
		Title: http.StatusText(status),
		Data: map[string]any{
			"Status":  status,
			"Message": message,
		},
	})
}

// SetFlash stores a flash message in the session.
func (r *Renderer) SetFlash(req *http.Request, message, flashType string) {
	if r.sessionManager == nil {
		return
	}
	r.sessionManager.Put(req.Context(), session.KeyFlash, message)
	r.sessionManager.Put(req.Context(), session.KeyFlashType, flashType)
}
