package store

import (
	"context"
	"database/sql"
	"time"
)

const articleColumns = `id, title, content, image_path, image_original_name, published, created_by, updated_by, created_at, updated_at`

func scanArticle(row *sql.Row) (Article, error) {
	var a Article
	err := row.Scan(
		&a.ID, &a.Title, &a.Content,
		&a.ImagePath, &a.ImageOriginalName, &a.Published,
		&a.CreatedBy, &a.UpdatedBy,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func scanArticleRows(rows *sql.Rows) ([]Article, error) {
	defer rows.Close()

	var items []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Content,
			&a.ImagePath, &a.ImageOriginalName, &a.Published,
			&a.CreatedBy, &a.UpdatedBy,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// CreateArticleParams holds the fields for CreateArticle.
type CreateArticleParams struct {
	Title             string
	Content           string
	ImagePath         sql.NullString
	ImageOriginalName sql.NullString
	Published         bool
	CreatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateArticle inserts an article. The creator is also recorded as the
// first updater.
func (q *Queries) CreateArticle(ctx context.Context, arg CreateArticleParams) (Article, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO articles (title, content, image_path, image_original_name, published, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+articleColumns,
		arg.Title, arg.Content, arg.ImagePath, arg.ImageOriginalName,
		arg.Published, arg.CreatedBy, arg.CreatedBy, arg.CreatedAt, arg.UpdatedAt,
	)
	return scanArticle(row)
}

// GetArticleByID fetches an article by primary key.
func (q *Queries) GetArticleByID(ctx context.Context, id int64) (Article, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	return scanArticle(row)
}

// GetArticleWithNames fetches an article joined with creator and updater names.
func (q *Queries) GetArticleWithNames(ctx context.Context, id int64) (ArticleWithNames, error) {
	var a ArticleWithNames
	err := q.db.QueryRowContext(ctx, `
		SELECT a.id, a.title, a.content, a.image_path, a.image_original_name, a.published,
		       a.created_by, a.updated_by, a.created_at, a.updated_at,
		       c.name AS creator_name, u.name AS updater_name
		FROM articles a
		JOIN users c ON c.id = a.created_by
		LEFT JOIN users u ON u.id = a.updated_by
		WHERE a.id = ?`, id,
	).Scan(
		&a.ID, &a.Title, &a.Content,
		&a.ImagePath, &a.ImageOriginalName, &a.Published,
		&a.CreatedBy, &a.UpdatedBy,
		&a.CreatedAt, &a.UpdatedAt,
		&a.CreatorName, &a.UpdaterName,
	)
	return a, err
}

// UpdateArticleParams holds the fields for UpdateArticle. The creator
// column is never touched by updates.
type UpdateArticleParams struct {
	Title     string
	Content   string
	Published bool
	UpdatedBy int64
	UpdatedAt time.Time
	ID        int64
}

// UpdateArticle updates the editable fields of an article.
func (q *Queries) UpdateArticle(ctx context.Context, arg UpdateArticleParams) (Article, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE articles SET title = ?, content = ?, published = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+articleColumns,
		arg.Title, arg.Content, arg.Published, arg.UpdatedBy, arg.UpdatedAt, arg.ID,
	)
	return scanArticle(row)
}

// UpdateArticleImageParams holds the fields for UpdateArticleImage.
type UpdateArticleImageParams struct {
	ImagePath         sql.NullString
	ImageOriginalName sql.NullString
	UpdatedBy         int64
	UpdatedAt         time.Time
	ID                int64
}

// UpdateArticleImage points the article at a new stored image file.
func (q *Queries) UpdateArticleImage(ctx context.Context, arg UpdateArticleImageParams) (Article, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE articles SET image_path = ?, image_original_name = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+articleColumns,
		arg.ImagePath, arg.ImageOriginalName, arg.UpdatedBy, arg.UpdatedAt, arg.ID,
	)
	return scanArticle(row)
}

// DeleteArticle removes an article row.
func (q *Queries) DeleteArticle(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	return err
}

// ListArticlesParams holds pagination for ListArticles.
type ListArticlesParams struct {
	PublishedOnly bool
	Limit         int64
	Offset        int64
}

// ListArticles returns articles newest first.
func (q *Queries) ListArticles(ctx context.Context, arg ListArticlesParams) ([]Article, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE (? = 0 OR published = 1)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		boolToInt(arg.PublishedOnly), arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return scanArticleRows(rows)
}

// CountArticles returns the number of articles visible under the filter.
func (q *Queries) CountArticles(ctx context.Context, publishedOnly bool) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM articles WHERE (? = 0 OR published = 1)`,
		boolToInt(publishedOnly),
	).Scan(&count)
	return count, err
}

// SearchArticlesParams holds keyword search and pagination inputs.
type SearchArticlesParams struct {
	Keyword       string
	PublishedOnly bool
	Limit         int64
	Offset        int64
}

// SearchArticles returns articles whose title or content contains the
// keyword, newest first.
func (q *Queries) SearchArticles(ctx context.Context, arg SearchArticlesParams) ([]Article, error) {
	pattern := "%" + arg.Keyword + "%"
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE (title LIKE ? OR content LIKE ?)
		  AND (? = 0 OR published = 1)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		pattern, pattern, boolToInt(arg.PublishedOnly), arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return scanArticleRows(rows)
}

// CountSearchArticlesParams holds keyword search inputs for counting.
type CountSearchArticlesParams struct {
	Keyword       string
	PublishedOnly bool
}

// CountSearchArticles counts keyword search matches.
func (q *Queries) CountSearchArticles(ctx context.Context, arg CountSearchArticlesParams) (int64, error) {
	pattern := "%" + arg.Keyword + "%"
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM articles
		WHERE (title LIKE ? OR content LIKE ?)
		  AND (? = 0 OR published = 1)`,
		pattern, pattern, boolToInt(arg.PublishedOnly),
	).Scan(&count)
	return count, err
}

// ListArticlesByAuthorParams holds inputs for ListArticlesByAuthor.
type ListArticlesByAuthorParams struct {
	CreatedBy int64
	Limit     int64
	Offset    int64
}

// ListArticlesByAuthor returns a single author's articles newest first.
func (q *Queries) ListArticlesByAuthor(ctx context.Context, arg ListArticlesByAuthorParams) ([]Article, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE created_by = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		arg.CreatedBy, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return scanArticleRows(rows)
}

// ListArticleImagePaths returns every non-null article image filename.
// Used by the orphaned-file sweep.
func (q *Queries) ListArticleImagePaths(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT image_path FROM articles WHERE image_path IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ListUserImagePaths returns every non-null profile image filename.
func (q *Queries) ListUserImagePaths(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT image_path FROM users WHERE image_path IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
