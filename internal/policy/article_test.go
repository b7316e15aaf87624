package policy

import (
	"testing"

	"github.com/penlight/penlight/internal/model"
	"github.com/penlight/penlight/internal/store"
)

var (
	alice = store.User{ID: 1, Name: "Alice", Role: model.RoleMember}
	bob   = store.User{ID: 2, Name: "Bob", Role: model.RoleMember}
	root  = store.User{ID: 3, Name: "Root", Role: model.RoleAdmin}
)

func article(createdBy int64, published bool) store.Article {
	return store.Article{ID: 10, CreatedBy: createdBy, Published: published}
}

func TestOwnershipRules(t *testing.T) {
	a := article(alice.ID, true)

	tests := []struct {
		name  string
		actor *store.User
		want  bool
	}{
		{"creator", &alice, true},
		{"other member", &bob, false},
		{"admin", &root, true},
		{"anonymous", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanUpdateArticle(tt.actor, a); got != tt.want {
				t.Errorf("CanUpdateArticle = %v; want %v", got, tt.want)
			}
			if got := CanDeleteArticle(tt.actor, a); got != tt.want {
				t.Errorf("CanDeleteArticle = %v; want %v", got, tt.want)
			}
		})
	}
}

// Update and delete permissions must agree for every actor/article pair.
func TestUpdateDeleteAgree(t *testing.T) {
	actors := []*store.User{nil, &alice, &bob, &root}
	creators := []int64{alice.ID, bob.ID, root.ID, 999}

	for _, actor := range actors {
		for _, creator := range creators {
			for _, published := range []bool{true, false} {
				a := article(creator, published)
				if CanUpdateArticle(actor, a) != CanDeleteArticle(actor, a) {
					t.Errorf("update/delete disagree for actor=%v creator=%d published=%v",
						actor, creator, published)
				}
			}
		}
	}
}

func TestCanViewArticle(t *testing.T) {
	t.Run("published visible to all", func(t *testing.T) {
		a := article(alice.ID, true)
		for _, actor := range []*store.User{nil, &alice, &bob, &root} {
			if !CanViewArticle(actor, a) {
				t.Errorf("published article should be visible to %v", actor)
			}
		}
	})

	t.Run("draft restricted", func(t *testing.T) {
		a := article(alice.ID, false)
		if CanViewArticle(nil, a) {
			t.Error("draft visible to anonymous")
		}
		if CanViewArticle(&bob, a) {
			t.Error("draft visible to other member")
		}
		if !CanViewArticle(&alice, a) {
			t.Error("draft hidden from its owner")
		}
		if !CanViewArticle(&root, a) {
			t.Error("draft hidden from admin")
		}
	})
}

func TestCanCreateArticle(t *testing.T) {
	if CanCreateArticle(nil) {
		t.Error("anonymous should not create")
	}
	if !CanCreateArticle(&bob) {
		t.Error("member should create")
	}
	if !CanCreateArticle(&root) {
		t.Error("admin should create")
	}
}
