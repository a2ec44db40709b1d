package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
)

// User represents a platform account. A user may hold several roles but
// acts under exactly one at a time (the session's active role).
type User struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	PasswordHash string      `json:"-"`
	Roles        []rbac.Role `json:"roles"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasRole reports whether the user holds the given role.
func (u User) HasRole(role rbac.Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicateEmail occurs when an email is already registered.
	ErrDuplicateEmail = errors.New("users: email already registered")
	// ErrForbidden occurs when a non-admin attempts user administration.
	ErrForbidden = errors.New("users: admin access required")
	// ErrInvalidRole occurs when granting a role outside the known set.
	ErrInvalidRole = errors.New("users: unknown role")
)
