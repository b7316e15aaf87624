// Package policy holds the authorization rules for articles. The rules are
// pure functions over an actor and a target so web handlers, API handlers,
// and tests all share one source of truth.
//
// Ownership is keyed on the user ID: an actor owns an article when its
// created_by column equals the actor's ID.
package policy

import "github.com/penlight/penlight/internal/store"

// CanViewArticle reports whether actor may view the article. Published
// articles are visible to everyone; drafts only to their owner or an admin.
func CanViewArticle(actor *store.User, article store.Article) bool {
	if article.Published {
		return true
	}
	return actor != nil && (actor.IsAdmin() || actor.ID == article.CreatedBy)
}

// CanCreateArticle reports whether actor may create articles. Any
// authenticated user may.
func CanCreateArticle(actor *store.User) bool {
	return actor != nil
}

// CanUpdateArticle reports whether actor may update the article: admins
// always, others only for their own articles.
func CanUpdateArticle(actor *store.User, article store.Article) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || actor.ID == article.CreatedBy
}

// CanDeleteArticle reports whether actor may delete the article. Deletion
// follows the same rule as update.
func CanDeleteArticle(actor *store.User, article store.Article) bool {
	return CanUpdateArticle(actor, article)
}
