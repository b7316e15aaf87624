package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/penlight/penlight/internal/cache"
	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/policy"
	"github.com/penlight/penlight/internal/service"
	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/upload"
	"github.com/penlight/penlight/internal/util"
)

// DefaultPerPage is the page size when per_page is absent.
const DefaultPerPage = 10

// MaxPerPage caps the page size a client may request.
const MaxPerPage = 100

// MaxTitleLength bounds the article title.
const MaxTitleLength = 255

// ArticlesHandler handles the article API routes.
type ArticlesHandler struct {
	queries   *store.Queries
	uploads   *upload.Store
	events    *service.EventService
	pageCache *cache.PageCache
}

// NewArticlesHandler creates an ArticlesHandler.
func NewArticlesHandler(db *sql.DB, uploads *upload.Store, events *service.EventService, pageCache *cache.PageCache) *ArticlesHandler {
	return &ArticlesHandler{
		queries:   store.New(db),
		uploads:   uploads,
		events:    events,
		pageCache: pageCache,
	}
}

// ArticleResponse is the JSON shape of an article.
type ArticleResponse struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Content           string `json:"content"`
	ImagePath         string `json:"image_path,omitempty"`
	ImageOriginalName string `json:"image_original_name,omitempty"`
	Published         bool   `json:"published"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
	Creator           string `json:"creator,omitempty"`
	Updater           string `json:"updater,omitempty"`
}

func articleResponse(a store.Article) ArticleResponse {
	return ArticleResponse{
		ID:                a.ID,
		Title:             a.Title,
		Content:           a.Content,
		ImagePath:         a.ImagePath.String,
		ImageOriginalName: a.ImageOriginalName.String,
		Published:         a.Published,
		CreatedAt:         a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func articleResponseWithNames(a store.ArticleWithNames) ArticleResponse {
	resp := articleResponse(a.Article)
	resp.Creator = a.CreatorName
	resp.Updater = a.UpdaterName.String
	return resp
}

// List handles GET /api/articles with page, per_page and q parameters.
// Only published articles are listed.
func (h *ArticlesHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", DefaultPerPage)
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	keyword := strings.TrimSpace(r.URL.Query().Get("q"))
	offset := int64((page - 1) * perPage)

	var (
		total    int64
		articles []store.Article
		err      error
	)
	if keyword != "" {
		total, err = h.queries.CountSearchArticles(r.Context(), store.CountSearchArticlesParams{
			Keyword: keyword, PublishedOnly: true,
		})
		if err == nil {
			articles, err = h.queries.SearchArticles(r.Context(), store.SearchArticlesParams{
				Keyword: keyword, PublishedOnly: true,
				Limit: int64(perPage), Offset: offset,
			})
		}
	} else {
		total, err = h.queries.CountArticles(r.Context(), true)
		if err == nil {
			articles, err = h.queries.ListArticles(r.Context(), store.ListArticlesParams{
				PublishedOnly: true,
				Limit:         int64(perPage), Offset: offset,
			})
		}
	}
	if err != nil {
		WriteInternalError(w, "failed to list articles", "error", err)
		return
	}

	out := make([]ArticleResponse, 0, len(articles))
	for _, a := range articles {
		out = append(out, articleResponse(a))
	}

	pages := int((total + int64(perPage) - 1) / int64(perPage))
	if pages < 1 {
		pages = 1
	}
	WriteList(w, out, Meta{Total: total, Page: page, PerPage: perPage, Pages: pages})
}

// Get handles GET /api/articles/{id}. Drafts are visible only to their
// owner and admins; everyone else sees a 404.
func (h *ArticlesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		WriteNotFound(w, "Article not found.")
		return
	}

	article, err := h.queries.GetArticleWithNames(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Article not found.")
			return
		}
		WriteInternalError(w, "failed to load article", "error", err, "article_id", id)
		return
	}

	if !policy.CanViewArticle(middleware.GetUser(r), article.Article) {
		WriteNotFound(w, "Article not found.")
		return
	}

	WriteSuccess(w, articleResponseWithNames(article))
}

// Create handles POST /api/articles. The request is multipart so an image
// can ride along with the fields.
func (h *ArticlesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if !policy.CanCreateArticle(user) {
		WriteForbidden(w, "You are not allowed to do that.")
		return
	}

	if err := r.ParseMultipartForm(upload.MaxUploadSize + 1<<20); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Request must be multipart form data.")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	content := strings.TrimSpace(r.FormValue("content"))
	published := parsePublished(r.FormValue("published"), true)

	details := validateArticleFields(title, content)

	saved, uploadDetail := h.saveImage(r, user.Name)
	if uploadDetail != "" {
		details["image"] = uploadDetail
	}

	if len(details) > 0 {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		WriteValidationError(w, details)
		return
	}

	now := time.Now()
	params := store.CreateArticleParams{
		Title:     title,
		Content:   content,
		Published: published,
		CreatedBy: user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if saved != nil {
		params.ImagePath = util.NullString(saved.Path)
		params.ImageOriginalName = util.NullString(saved.OriginalName)
	}

	article, err := h.queries.CreateArticle(r.Context(), params)
	if err != nil {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		WriteInternalError(w, "failed to create article", "error", err)
		return
	}

	h.events.LogArticle(r.Context(), "article created", user.ID, article.ID)
	h.pageCache.Invalidate(r.Context())

	WriteCreated(w, articleResponse(article))
}

// Update handles PUT /api/articles/{id}. Absent fields keep their current
// values; an uploaded image replaces the stored one.
func (h *ArticlesHandler) Update(w http.ResponseWriter, r *http.Request) {
	article, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	user := middleware.GetUser(r)

	if err := r.ParseMultipartForm(upload.MaxUploadSize + 1<<20); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Request must be multipart form data.")
		return
	}

	title := article.Title
	if _, present := r.MultipartForm.Value["title"]; present {
		title = strings.TrimSpace(r.FormValue("title"))
	}
	content := article.Content
	if _, present := r.MultipartForm.Value["content"]; present {
		content = strings.TrimSpace(r.FormValue("content"))
	}
	published := article.Published
	if v, present := r.MultipartForm.Value["published"]; present && len(v) > 0 {
		published = parsePublished(v[0], article.Published)
	}

	details := validateArticleFields(title, content)

	saved, uploadDetail := h.saveImage(r, user.Name)
	if uploadDetail != "" {
		details["image"] = uploadDetail
	}

	if len(details) > 0 {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		WriteValidationError(w, details)
		return
	}

	now := time.Now()
	updated, err := h.queries.UpdateArticle(r.Context(), store.UpdateArticleParams{
		Title:     title,
		Content:   content,
		Published: published,
		UpdatedBy: user.ID,
		UpdatedAt: now,
		ID:        article.ID,
	})
	if err != nil {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		WriteInternalError(w, "failed to update article", "error", err, "article_id", article.ID)
		return
	}

	if saved != nil {
		updated, err = h.queries.UpdateArticleImage(r.Context(), store.UpdateArticleImageParams{
			ImagePath:         util.NullString(saved.Path),
			ImageOriginalName: util.NullString(saved.OriginalName),
			UpdatedBy:         user.ID,
			UpdatedAt:         now,
			ID:                article.ID,
		})
		if err != nil {
			h.uploads.RemoveQuietly(saved.Path)
			WriteInternalError(w, "failed to update article image", "error", err, "article_id", article.ID)
			return
		}
		if article.ImagePath.Valid {
			h.uploads.RemoveQuietly(article.ImagePath.String)
		}
	}

	h.events.LogArticle(r.Context(), "article updated", user.ID, article.ID)
	h.pageCache.Invalidate(r.Context())

	WriteSuccess(w, articleResponse(updated))
}

// Delete handles DELETE /api/articles/{id}.
func (h *ArticlesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	article, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	user := middleware.GetUser(r)

	if err := h.queries.DeleteArticle(r.Context(), article.ID); err != nil {
		WriteInternalError(w, "failed to delete article", "error", err, "article_id", article.ID)
		return
	}
	if article.ImagePath.Valid {
		h.uploads.RemoveQuietly(article.ImagePath.String)
	}

	h.events.LogArticle(r.Context(), "article deleted", user.ID, article.ID)
	h.pageCache.Invalidate(r.Context())

	WriteNoContent(w)
}

// requireEditable loads the article and enforces ownership. A missing
// article is 404 before any authorization check.
func (h *ArticlesHandler) requireEditable(w http.ResponseWriter, r *http.Request) (store.Article, bool) {
	var zero store.Article

	id, ok := idParam(r)
	if !ok {
		WriteNotFound(w, "Article not found.")
		return zero, false
	}

	article, err := h.queries.GetArticleByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "Article not found.")
			return zero, false
		}
		WriteInternalError(w, "failed to load article", "error", err, "article_id", id)
		return zero, false
	}

	if !policy.CanUpdateArticle(middleware.GetUser(r), article) {
		WriteForbidden(w, "You can only manage your own articles.")
		return zero, false
	}

	return article, true
}

func (h *ArticlesHandler) saveImage(r *http.Request, actorName string) (*upload.SavedFile, string) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ""
		}
		return nil, "Could not read the uploaded file"
	}
	defer file.Close()

	saved, err := h.uploads.ProcessAndSave(upload.KindArticle, actorName, header.Filename, file)
	if err != nil {
		slog.Warn("article image rejected", "error", err, "filename", header.Filename)
		return nil, "File must be a JPEG, PNG, GIF, or WebP image up to 10 MB"
	}
	return saved, ""
}

func validateArticleFields(title, content string) map[string]string {
	details := make(map[string]string)
	if title == "" {
		details["title"] = "Title is required"
	} else if len(title) > MaxTitleLength {
		details["title"] = "Title must be at most 255 characters"
	}
	if content == "" {
		details["content"] = "Content is required"
	}
	return details
}

func parsePublished(value string, fallback bool) bool {
	switch strings.ToLower(value) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return fallback
	}
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
