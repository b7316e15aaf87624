package store

import (
	"database/sql"
	"time"

	"github.com/penlight/penlight/internal/model"
)

// User is a row in the users table.
type User struct {
	ID                int64
	Name              string
	Email             string
	PasswordHash      string `json:"-"`
	Role              string
	ImagePath         sql.NullString
	ImageOriginalName sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAt       sql.NullTime
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool {
	return u.Role == model.RoleAdmin
}

// Article is a row in the articles table.
type Article struct {
	ID                int64
	Title             string
	Content           string
	ImagePath         sql.NullString
	ImageOriginalName sql.NullString
	Published         bool
	CreatedBy         int64
	UpdatedBy         sql.NullInt64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ArticleWithNames is an article joined with its creator and updater names.
type ArticleWithNames struct {
	Article
	CreatorName string
	UpdaterName sql.NullString
}

// Event is a row in the events table.
type Event struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	Metadata  string
	CreatedAt time.Time
}
