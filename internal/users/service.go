package users

import (
	"context"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
	"golang.org/x/crypto/bcrypt"
)

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service manages platform accounts. All mutating operations are
// admin-only; reads back the login flow.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewService constructs the users service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now, newID: uuid.New}
}

// CreateInput carries a new account registration.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Roles    []rbac.Role
}

// Create registers an account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (User, error) {
	if actor.Role != rbac.RoleAdmin {
		return User{}, ErrForbidden
	}
	for _, role := range in.Roles {
		if !role.Valid() {
			return User{}, ErrInvalidRole
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	now := s.now()
	u := User{
		ID:           s.newID(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Roles:        in.Roles,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "user.create", u.ID)
	return u, nil
}

// List returns all accounts (admin only).
func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]User, error) {
	if actor.Role != rbac.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx)
}

// Get fetches one account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail fetches one account by email. Used by the login flow.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// Deactivate disables an account (admin only).
func (s *Service) Deactivate(ctx context.Context, actor rbac.Actor, id uuid.UUID) error {
	if actor.Role != rbac.RoleAdmin {
		return ErrForbidden
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "user.deactivate", id)
	return nil
}

// GrantRole adds a role to an account (admin only).
func (s *Service) GrantRole(ctx context.Context, actor rbac.Actor, id uuid.UUID, role rbac.Role) error {
	if actor.Role != rbac.RoleAdmin {
		return ErrForbidden
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.GrantRole(ctx, id, role); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "user.grant."+string(role), id)
	return nil
}

// RevokeRole removes a role from an account (admin only).
func (s *Service) RevokeRole(ctx context.Context, actor rbac.Actor, id uuid.UUID, role rbac.Role) error {
	if actor.Role != rbac.RoleAdmin {
		return ErrForbidden
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.RevokeRole(ctx, id, role); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "user.revoke."+string(role), id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Actor, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "user", EntityID: id.String()}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
