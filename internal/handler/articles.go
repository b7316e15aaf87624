package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/penlight/penlight/internal/cache"
	"github.com/penlight/penlight/internal/imaging"
	"github.com/penlight/penlight/internal/middleware"
	"github.com/penlight/penlight/internal/policy"
	"github.com/penlight/penlight/internal/render"
	"github.com/penlight/penlight/internal/service"
	"github.com/penlight/penlight/internal/store"
	"github.com/penlight/penlight/internal/upload"
	"github.com/penlight/penlight/internal/util"
)

// ArticlesPerPage is the number of articles per listing page.
const ArticlesPerPage = 10

// MaxTitleLength bounds the article title.
const MaxTitleLength = 255

// ArticlesHandler handles article routes.
type ArticlesHandler struct {
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
	uploads        *upload.Store
	events         *service.EventService
	pageCache      *cache.PageCache
}

// NewArticlesHandler creates an ArticlesHandler.
func NewArticlesHandler(db *sql.DB, renderer *render.Renderer, sm *scs.SessionManager, uploads *upload.Store, events *service.EventService, pageCache *cache.PageCache) *ArticlesHandler {
	return &ArticlesHandler{
		queries:        store.New(db),
		renderer:       renderer,
		sessionManager: sm,
		uploads:        uploads,
		events:         events,
		pageCache:      pageCache,
	}
}

// ArticleListData holds data for the article list template.
type ArticleListData struct {
	Articles   []store.Article
	Query      string
	Pagination Pagination
}

// List handles GET / with optional keyword search and pagination.
func (h *ArticlesHandler) List(w http.ResponseWriter, r *http.Request) {
	page := parsePageParam(r)
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		total int64
		err   error
	)
	if query != "" {
		total, err = h.queries.CountSearchArticles(r.Context(), store.CountSearchArticlesParams{
			Keyword: query, PublishedOnly: true,
		})
	} else {
		total, err = h.queries.CountArticles(r.Context(), true)
	}
	if err != nil {
		logAndInternalError(w, "failed to count articles", "error", err)
		return
	}

	pagination := BuildPagination(page, int(total), ArticlesPerPage, redirectHome, query)

	var articles []store.Article
	if query != "" {
		articles, err = h.queries.SearchArticles(r.Context(), store.SearchArticlesParams{
			Keyword: query, PublishedOnly: true,
			Limit: ArticlesPerPage, Offset: pagination.Offset(),
		})
	} else {
		articles, err = h.queries.ListArticles(r.Context(), store.ListArticlesParams{
			PublishedOnly: true,
			Limit:         ArticlesPerPage, Offset: pagination.Offset(),
		})
	}
	if err != nil {
		logAndInternalError(w, "failed to list articles", "error", err)
		return
	}

	h.renderer.Render(w, r, "articles_list", render.TemplateData{
		Title: "Articles",
		Data: ArticleListData{
			Articles:   articles,
			Query:      query,
			Pagination: pagination,
		},
	})
}

// ArticleShowData holds data for the article detail template.
type ArticleShowData struct {
	Article    store.ArticleWithNames
	CanEdit    bool
	ImageShape string
}

// Show handles GET /articles/{id}. Unpublished articles are hidden from
// everyone but their owner and admins.
func (h *ArticlesHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r)
	if !ok {
		h.renderer.ErrorPage(w, r, http.StatusNotFound, "Article not found.")
		return
	}

	article, err := h.queries.GetArticleWithNames(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.renderer.ErrorPage(w, r, http.StatusNotFound, "Article not found.")
			return
		}
		logAndInternalError(w, "failed to load article", "error", err, "article_id", id)
		return
	}

	user := middleware.GetUser(r)
	if !policy.CanViewArticle(user, article.Article) {
		// Drafts stay invisible rather than revealing their existence
		h.renderer.ErrorPage(w, r, http.StatusNotFound, "Article not found.")
		return
	}

	h.renderer.Render(w, r, "articles_show", render.TemplateData{
		Title: article.Title,
		Data: ArticleShowData{
			Article:    article,
			CanEdit:    policy.CanUpdateArticle(user, article.Article),
			ImageShape: h.imageShape(article.ImagePath),
		},
	})
}

// imageShape classifies the stored image for layout purposes.
func (h *ArticlesHandler) imageShape(imagePath sql.NullString) string {
	if !imagePath.Valid {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(h.uploads.Root(), imagePath.String))
	if err != nil {
		return imaging.ShapeLandscape
	}
	width, height, err := imaging.Dimensions(data)
	if err != nil {
		return imaging.ShapeLandscape
	}
	return imaging.Shape(width, height)
}

// ArticleFormData holds data for the article form template.
type ArticleFormData struct {
	Article    *store.Article
	Errors     map[string]string
	FormValues map[string]string
	IsEdit     bool
}

// NewForm handles GET /articles/new.
func (h *ArticlesHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, "articles_form", render.TemplateData{
		Title: "New Article",
		Data: ArticleFormData{
			Errors:     make(map[string]string),
			FormValues: make(map[string]string),
		},
	})
}

// Create handles POST /articles.
func (h *ArticlesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if !policy.CanCreateArticle(user) {
		h.renderer.ErrorPage(w, r, http.StatusForbidden, "You are not allowed to do that.")
		return
	}

	if err := r.ParseMultipartForm(upload.MaxUploadSize + 1<<20); err != nil {
		flashAndRedirect(w, r, h.renderer, "Invalid form submission.", "error", "/articles/new")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	content := strings.TrimSpace(r.FormValue("content"))
	published := r.FormValue("published") == "1"

	formValues := map[string]string{"title": title, "content": content}
	validationErrors := validateArticleInput(title, content)

	// The image is written before any row points at it; validation or
	// write failure aborts the create with nothing to clean up.
	saved, uploadErr := h.saveUploadedImage(r, user.Name)
	if uploadErr != "" {
		validationErrors["image"] = uploadErr
	}

	if len(validationErrors) > 0 {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		h.renderer.Render(w, r, "articles_form", render.TemplateData{
			Title: "New Article",
			Data: ArticleFormData{
				Errors:     validationErrors,
				FormValues: formValues,
			},
		})
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
		logAndInternalError(w, "failed to create article", "error", err)
		return
	}

	slog.Info("article created", "article_id", article.ID, "user_id", user.ID)
	h.events.LogArticle(r.Context(), "article created", user.ID, article.ID)
	h.pageCache.Invalidate(r.Context())

	flashAndRedirect(w, r, h.renderer, "Article created.", "success", articlePath(article.ID))
}

// EditForm handles GET /articles/{id}/edit.
func (h *ArticlesHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	article, ok := h.requireEditable(w, r)
	if !ok {
		return
	}

	h.renderer.Render(w, r, "articles_form", render.TemplateData{
		Title: "Edit Article",
		Data: ArticleFormData{
			Article:    &article,
			Errors:     make(map[string]string),
			FormValues: make(map[string]string),
			IsEdit:     true,
		},
	})
}

// Update handles POST/PUT /articles/{id}. An uploaded image replaces the
// current one: the new file is written first, the row is pointed at it, and
// only then is the old file removed, best effort. Without a new file the
// image columns stay untouched.
func (h *ArticlesHandler) Update(w http.ResponseWriter, r *http.Request) {
	article, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	user := middleware.GetUser(r)

	if err := r.ParseMultipartForm(upload.MaxUploadSize + 1<<20); err != nil {
		flashAndRedirect(w, r, h.renderer, "Invalid form submission.", "error", articlePath(article.ID)+"/edit")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	content := strings.TrimSpace(r.FormValue("content"))
	published := r.FormValue("published") == "1"

	formValues := map[string]string{"title": title, "content": content}
	validationErrors := validateArticleInput(title, content)

	saved, uploadErr := h.saveUploadedImage(r, user.Name)
	if uploadErr != "" {
		validationErrors["image"] = uploadErr
	}

	if len(validationErrors) > 0 {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		h.renderer.Render(w, r, "articles_form", render.TemplateData{
			Title: "Edit Article",
			Data: ArticleFormData{
				Article:    &article,
				Errors:     validationErrors,
				FormValues: formValues,
				IsEdit:     true,
			},
		})
		return
	}

	now := time.Now()
	if _, err := h.queries.UpdateArticle(r.Context(), store.UpdateArticleParams{
		Title:     title,
		Content:   content,
		Published: published,
		UpdatedBy: user.ID,
		UpdatedAt: now,
		ID:        article.ID,
	}); err != nil {
		if saved != nil {
			h.uploads.RemoveQuietly(saved.Path)
		}
		logAndInternalError(w, "failed to update article", "error", err, "article_id", article.ID)
		return
	}

	if saved != nil {
		if _, err := h.queries.UpdateArticleImage(r.Context(), store.UpdateArticleImageParams{
			ImagePath:         util.NullString(saved.Path),
			ImageOriginalName: util.NullString(saved.OriginalName),
			UpdatedBy:         user.ID,
			UpdatedAt:         now,
			ID:                article.ID,
		}); err != nil {
			// Row still points at the old file, which stays in place
			h.uploads.RemoveQuietly(saved.Path)
			logAndInternalError(w, "failed to update article image", "error", err, "article_id", article.ID)
			return
		}
		if article.ImagePath.Valid {
			h.uploads.RemoveQuietly(article.ImagePath.String)
		}
	}

	slog.Info("article updated", "article_id", article.ID, "user_id", user.ID)
	h.events.LogArticle(r.Context(), "article updated", user.ID, article.ID)
	h.pageCache.Invalidate(r.Context())

	flashAndRedirect(w, r, h.renderer, "Article updated.", "success", articlePath(article.ID))
}

// Delete handles POST/DELETE /articles/{id}/delete. The row is removed
// first; the file removal afterwards is best effort.
func (h *ArticlesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	article, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	user := middleware.GetUser(r)

	if err := h.queries.DeleteArticle(r.Context(), article.ID); err != nil {
		logAndInternalError(w, "failed to delete article", "error", err, "article_id", article.ID)
		return
	}

	if article.ImagePath.Valid {
		h.uploads.RemoveQuietly(article.ImagePath.String)
	}

	slog.Info("article deleted", "article_id", article.ID, "user_id", user.ID)
	h.events.LogArticle(r.Context(), "article deleted", user.ID, article.ID)
	h.pageCache.Invalidate(r.Context())

	flashAndRedirect(w, r, h.renderer, "Article deleted.", "success", redirectHome)
}

// requireEditable loads the article and enforces the ownership rule.
// Missing articles return 404 before any authorization check; a non-owner
// non-admin gets 403.
func (h *ArticlesHandler) requireEditable(w http.ResponseWriter, r *http.Request) (store.Article, bool) {
	var zero store.Article

	id, ok := parseIDParam(r)
	if !ok {
		h.renderer.ErrorPage(w, r, http.StatusNotFound, "Article not found.")
		return zero, false
	}

	article, err := h.queries.GetArticleByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.renderer.ErrorPage(w, r, http.StatusNotFound, "Article not found.")
			return zero, false
		}
		logAndInternalError(w, "failed to load article", "error", err, "article_id", id)
		return zero, false
	}

	user := middleware.GetUser(r)
	if !policy.CanUpdateArticle(user, article) {
		h.renderer.ErrorPage(w, r, http.StatusForbidden, "You can only manage your own articles.")
		return zero, false
	}

	return article, true
}

// saveUploadedImage stores the optional "image" form file. It returns the
// saved file, or a non-empty message when the upload was present but
// invalid. No file at all is not an error.
func (h *ArticlesHandler) saveUploadedImage(r *http.Request, actorName string) (*upload.SavedFile, string) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ""
		}
		return nil, "Could not read the uploaded file."
	}
	defer file.Close()

	saved, err := h.uploads.ProcessAndSave(upload.KindArticle, actorName, header.Filename, file)
	if err != nil {
		slog.Warn("article image rejected", "error", err, "filename", header.Filename)
		return nil, "The file must be an image (JPEG, PNG, GIF, or WebP) up to 10 MB."
	}
	return saved, ""
}

func validateArticleInput(title, content string) map[string]string {
	validationErrors := make(map[string]string)

	if title == "" {
		validationErrors["title"] = "Title is required"
	} else if len(title) > MaxTitleLength {
		validationErrors["title"] = "Title must be at most 255 characters"
	}

	if content == "" {
		validationErrors["content"] = "Content is required"
	}

	return validationErrors
}

func articlePath(id int64) string {
	return "/articles/" + strconv.FormatInt(id, 10)
}
