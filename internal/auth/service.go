package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
	"github.com/smartq/launchpad/internal/users"
	"golang.org/x/crypto/bcrypt"
)

// UserPort supplies account lookups. Implemented by the users service.
type UserPort interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	Get(ctx context.Context, id uuid.UUID) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users UserPort
}

// NewService constructs a new Service.
func NewService(userPort UserPort) *Service {
	return &Service{users: userPort}
}

// Authenticate validates email/password credentials. Inactive accounts
// and unknown emails fail identically so the response leaks nothing.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive || len(user.Roles) == 0 {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Identity returns the account behind a session user id.
func (s *Service) Identity(ctx context.Context, userID string) (users.User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return users.User{}, users.ErrNotFound
	}
	return s.users.Get(ctx, id)
}

// SwitchRole validates that the user actually holds the requested role.
func (s *Service) SwitchRole(ctx context.Context, userID string, role rbac.Role) (users.User, error) {
	user, err := s.Identity(ctx, userID)
	if err != nil {
		return users.User{}, err
	}
	if !role.Valid() || !user.HasRole(role) {
		return users.User{}, shared.ErrRoleNotHeld
	}
	return user, nil
}

// IsAuthFailure reports whether the error should surface as a 401.
func IsAuthFailure(err error) bool {
	return errors.Is(err, shared.ErrInvalidCredentials)
}
