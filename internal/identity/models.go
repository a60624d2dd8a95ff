// Package identity owns users, their role sets and the credential check
// performed before a signature is recorded.
package identity

import (
	"time"

	"edms/internal/rbac"
)

// User binds an identity to its roles and hashed signing credential.
type User struct {
	ID         string      `json:"user_id"`
	Roles      []rbac.Role `json:"roles"`
	SecretHash string      `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Actor is the authorization view of the user.
func (u User) Actor() rbac.Actor {
	return rbac.Actor{ID: u.ID, Roles: append([]rbac.Role(nil), u.Roles...)}
}
