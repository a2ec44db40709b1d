package deployment

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
	"github.com/smartq/launchpad/internal/sites"
)

// SitePort moves the owning site through its workflow as the deployment
// progresses. Implemented by the sites service.
type SitePort interface {
	Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (sites.Site, error)
	AdvanceStage(ctx context.Context, actor rbac.Actor, id uuid.UUID, next sites.Stage) (sites.Site, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// DefaultChecklist is seeded into every new deployment.
var DefaultChecklist = []string{
	"Hardware delivered to site",
	"Network and cabling verified",
	"POS terminals installed",
	"Software configured and licensed",
	"Staff walkthrough completed",
}

// Service coordinates deployment scheduling, checklists and go-live.
type Service struct {
	repo   RepositoryPort
	sites  SitePort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewService constructs the deployment service.
func NewService(repo RepositoryPort, sitePort SitePort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		sites:  sitePort,
		audit:  audit,
		logger: logger,
		now:    time.Now,
		newID:  uuid.New,
	}
}

// Schedule creates a deployment for an approved site and moves the site
// into the scheduled stage.
func (s *Service) Schedule(ctx context.Context, actor rbac.Actor, siteID uuid.UUID, engineerID string, when time.Time) (Deployment, error) {
	if existing, err := s.repo.GetBySite(ctx, siteID); err == nil && existing.Status != StatusCompleted {
		return Deployment{}, ErrAlreadyScheduled
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return Deployment{}, err
	}
	if _, err := s.sites.AdvanceStage(ctx, actor, siteID, sites.StageDeploymentScheduled); err != nil {
		return Deployment{}, err
	}
	now := s.now()
	d := Deployment{
		ID:           s.newID(),
		SiteID:       siteID,
		ScheduledFor: when,
		Status:       StatusScheduled,
		EngineerID:   engineerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	items := make([]ChecklistItem, 0, len(DefaultChecklist))
	for _, title := range DefaultChecklist {
		items = append(items, ChecklistItem{
			ID:           s.newID(),
			DeploymentID: d.ID,
			Title:        title,
			Status:       ItemPending,
			UpdatedAt:    now,
		})
	}
	if err := s.repo.Insert(ctx, d, items); err != nil {
		return Deployment{}, err
	}
	s.recordAudit(ctx, actor, "deployment.schedule", d.ID)
	return d, nil
}

// Start moves a scheduled deployment into progress.
func (s *Service) Start(ctx context.Context, actor rbac.Actor, id uuid.UUID) (Deployment, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Deployment{}, err
	}
	if d.Status != StatusScheduled {
		return Deployment{}, ErrInvalidState
	}
	if _, err := s.sites.AdvanceStage(ctx, actor, d.SiteID, sites.StageDeploymentInProgress); err != nil {
		return Deployment{}, err
	}
	d.Status = StatusInProgress
	d.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, d); err != nil {
		return Deployment{}, err
	}
	s.recordAudit(ctx, actor, "deployment.start", d.ID)
	return d, nil
}

// UpdateChecklistItem sets the status and note of one checklist entry.
func (s *Service) UpdateChecklistItem(ctx context.Context, actor rbac.Actor, deploymentID, itemID uuid.UUID, status ItemStatus, note string) (ChecklistItem, error) {
	items, err := s.repo.ListItems(ctx, deploymentID)
	if err != nil {
		return ChecklistItem{}, err
	}
	for _, item := range items {
		if item.ID != itemID {
			continue
		}
		item.Status = status
		item.Note = note
		item.UpdatedAt = s.now()
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return ChecklistItem{}, err
		}
		s.recordAudit(ctx, actor, "deployment.checklist."+string(status), deploymentID)
		return item, nil
	}
	return ChecklistItem{}, ErrNotFound
}

// Complete closes an in-progress deployment once no checklist items
// remain open and advances the site.
func (s *Service) Complete(ctx context.Context, actor rbac.Actor, id uuid.UUID) (Deployment, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Deployment{}, err
	}
	if d.Status != StatusInProgress {
		return Deployment{}, ErrInvalidState
	}
	open, err := s.repo.CountOpenItems(ctx, id)
	if err != nil {
		return Deployment{}, err
	}
	if open > 0 {
		return Deployment{}, ErrChecklistIncomplete
	}
	if _, err := s.sites.AdvanceStage(ctx, actor, d.SiteID, sites.StageDeploymentCompleted); err != nil {
		return Deployment{}, err
	}
	now := s.now()
	d.Status = StatusCompleted
	d.CompletedAt = &now
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d); err != nil {
		return Deployment{}, err
	}
	s.recordAudit(ctx, actor, "deployment.complete", d.ID)
	return d, nil
}

// GoLive activates a completed deployment's site.
func (s *Service) GoLive(ctx context.Context, actor rbac.Actor, id uuid.UUID) (Deployment, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Deployment{}, err
	}
	if d.Status != StatusCompleted || d.WentLiveAt != nil {
		return Deployment{}, ErrInvalidState
	}
	if _, err := s.sites.AdvanceStage(ctx, actor, d.SiteID, sites.StageLiveReady); err != nil {
		return Deployment{}, err
	}
	if _, err := s.sites.AdvanceStage(ctx, actor, d.SiteID, sites.StageLive); err != nil {
		return Deployment{}, err
	}
	now := s.now()
	d.WentLiveAt = &now
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d); err != nil {
		return Deployment{}, err
	}
	s.recordAudit(ctx, actor, "deployment.golive", d.ID)
	return d, nil
}

// Get returns a deployment and its checklist for a site the actor can see.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, siteID uuid.UUID) (Deployment, []ChecklistItem, error) {
	if _, err := s.sites.Get(ctx, actor, siteID); err != nil {
		return Deployment{}, nil, err
	}
	d, err := s.repo.GetBySite(ctx, siteID)
	if err != nil {
		return Deployment{}, nil, err
	}
	items, err := s.repo.ListItems(ctx, d.ID)
	if err != nil {
		return Deployment{}, nil, err
	}
	return d, items, nil
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Actor, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "deployment", EntityID: id.String()}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
