// Package model holds domain constants shared across the application.
package model

// User roles. Admins may manage any article; members only their own.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ValidRoles contains all valid user roles.
var ValidRoles = []string{RoleAdmin, RoleMember}

// IsValidRole reports whether role is a known user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
