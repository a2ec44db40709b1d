package sites

import (
	"context"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service coordinates site lifecycle operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	titler cases.Caser
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewService constructs the sites service. audit may be nil in tests.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  audit,
		logger: logger,
		titler: cases.Title(language.BritishEnglish),
		now:    time.Now,
		newID:  uuid.New,
	}
}

// CreateInput carries a new site registration.
type CreateInput struct {
	Name         string
	Organization string
	UnitCode     string
	Sector       string
	Location     string
	Postcode     string
	Region       string
	Country      string
	GoLiveDate   *time.Time
	Priority     Priority
	Notes        string
}

// Create registers a site in the created stage. Users without full site
// access become the site's assigned contact for their role.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Site, error) {
	now := s.now()
	site := Site{
		ID:           s.newID(),
		Name:         s.normalizeName(in.Name),
		Organization: strings.TrimSpace(in.Organization),
		UnitCode:     strings.ToUpper(strings.TrimSpace(in.UnitCode)),
		Sector:       strings.TrimSpace(in.Sector),
		Location:     strings.TrimSpace(in.Location),
		Postcode:     strings.ToUpper(strings.TrimSpace(in.Postcode)),
		Region:       strings.TrimSpace(in.Region),
		Country:      strings.TrimSpace(in.Country),
		GoLiveDate:   in.GoLiveDate,
		Priority:     in.Priority,
		Stage:        StageCreated,
		Notes:        in.Notes,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if site.Priority == "" {
		site.Priority = PriorityMedium
	}
	switch actor.Role {
	case rbac.RoleOpsManager:
		site.OpsManagerID = &actor.UserID
	case rbac.RoleDeploymentEngineer:
		site.EngineerID = &actor.UserID
	}
	if err := s.repo.Insert(ctx, site); err != nil {
		return Site{}, err
	}
	s.recordAudit(ctx, actor, "site.create", site.ID)
	return site, nil
}

// Get returns one site, restricted to the actor's visibility tier.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (Site, error) {
	site, err := s.repo.Get(ctx, id)
	if err != nil {
		return Site{}, err
	}
	if !s.canSee(actor, site) {
		return Site{}, ErrNotFound
	}
	return site, nil
}

// List returns sites visible to the actor, optionally filtered by stage.
func (s *Service) List(ctx context.Context, actor rbac.Actor, f Filter) ([]Site, error) {
	if rbac.GroupLevel(actor.Role, "/sites") != rbac.AccessFull {
		f.AssignedTo = actor.UserID
	}
	return s.repo.List(ctx, f)
}

// UpdateInput carries mutable site fields. Nil pointers leave the stored
// value unchanged.
type UpdateInput struct {
	Name         *string
	Organization *string
	Sector       *string
	Location     *string
	Postcode     *string
	Region       *string
	Country      *string
	GoLiveDate   *time.Time
	Priority     *Priority
	Notes        *string
}

// Update applies a partial update to a site the actor can see.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id uuid.UUID, in UpdateInput) (Site, error) {
	site, err := s.Get(ctx, actor, id)
	if err != nil {
		return Site{}, err
	}
	if in.Name != nil {
		site.Name = s.normalizeName(*in.Name)
	}
	if in.Organization != nil {
		site.Organization = strings.TrimSpace(*in.Organization)
	}
	if in.Sector != nil {
		site.Sector = strings.TrimSpace(*in.Sector)
	}
	if in.Location != nil {
		site.Location = strings.TrimSpace(*in.Location)
	}
	if in.Postcode != nil {
		site.Postcode = strings.ToUpper(strings.TrimSpace(*in.Postcode))
	}
	if in.Region != nil {
		site.Region = strings.TrimSpace(*in.Region)
	}
	if in.Country != nil {
		site.Country = strings.TrimSpace(*in.Country)
	}
	if in.GoLiveDate != nil {
		site.GoLiveDate = in.GoLiveDate
	}
	if in.Priority != nil {
		site.Priority = *in.Priority
	}
	if in.Notes != nil {
		site.Notes = *in.Notes
	}
	site.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, site); err != nil {
		return Site{}, err
	}
	s.recordAudit(ctx, actor, "site.update", site.ID)
	return site, nil
}

// Assign sets the responsible ops manager and deployment engineer.
// Assignment is reserved for roles with full site access.
func (s *Service) Assign(ctx context.Context, actor rbac.Actor, id uuid.UUID, opsManagerID, engineerID *string) (Site, error) {
	if rbac.GroupLevel(actor.Role, "/sites") != rbac.AccessFull {
		return Site{}, ErrForbidden
	}
	site, err := s.repo.Get(ctx, id)
	if err != nil {
		return Site{}, err
	}
	site.OpsManagerID = opsManagerID
	site.EngineerID = engineerID
	site.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, site); err != nil {
		return Site{}, err
	}
	s.recordAudit(ctx, actor, "site.assign", site.ID)
	return site, nil
}

// AdvanceStage moves a site to the next workflow stage. The repository
// guard keeps concurrent movers from skipping steps.
func (s *Service) AdvanceStage(ctx context.Context, actor rbac.Actor, id uuid.UUID, next Stage) (Site, error) {
	site, err := s.Get(ctx, actor, id)
	if err != nil {
		return Site{}, err
	}
	if !next.Valid() || !site.Stage.CanAdvanceTo(next) {
		return Site{}, ErrInvalidStage
	}
	if err := s.repo.UpdateStage(ctx, id, site.Stage, next); err != nil {
		return Site{}, err
	}
	site.Stage = next
	site.UpdatedAt = s.now()
	s.recordAudit(ctx, actor, "site.stage."+string(next), site.ID)
	return site, nil
}

// SubmitStudy records survey findings and moves the site into the study
// flow when it is still in the created stage.
func (s *Service) SubmitStudy(ctx context.Context, actor rbac.Actor, siteID uuid.UUID, findings string) (Study, error) {
	site, err := s.Get(ctx, actor, siteID)
	if err != nil {
		return Study{}, err
	}
	now := s.now()
	study := Study{
		ID:        s.newID(),
		SiteID:    siteID,
		Findings:  findings,
		Status:    StudyInProgress,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertStudy(ctx, study); err != nil {
		return Study{}, err
	}
	if site.Stage == StageCreated {
		if err := s.repo.UpdateStage(ctx, siteID, StageCreated, StageStudyInProgress); err != nil {
			return Study{}, err
		}
	}
	s.recordAudit(ctx, actor, "site.study.submit", siteID)
	return study, nil
}

// CompleteStudy marks the latest study completed and advances the site.
func (s *Service) CompleteStudy(ctx context.Context, actor rbac.Actor, siteID uuid.UUID, findings string) (Study, error) {
	site, err := s.Get(ctx, actor, siteID)
	if err != nil {
		return Study{}, err
	}
	study, err := s.repo.GetStudy(ctx, siteID)
	if err != nil {
		return Study{}, err
	}
	if findings != "" {
		study.Findings = findings
	}
	study.Status = StudyCompleted
	study.UpdatedAt = s.now()
	if err := s.repo.UpdateStudy(ctx, study); err != nil {
		return Study{}, err
	}
	if site.Stage == StageStudyInProgress {
		if err := s.repo.UpdateStage(ctx, siteID, StageStudyInProgress, StageStudyCompleted); err != nil {
			return Study{}, err
		}
	}
	s.recordAudit(ctx, actor, "site.study.complete", siteID)
	return study, nil
}

// Study returns the latest study for a visible site.
func (s *Service) Study(ctx context.Context, actor rbac.Actor, siteID uuid.UUID) (Study, error) {
	if _, err := s.Get(ctx, actor, siteID); err != nil {
		return Study{}, err
	}
	return s.repo.GetStudy(ctx, siteID)
}

func (s *Service) canSee(actor rbac.Actor, site Site) bool {
	if rbac.GroupLevel(actor.Role, "/sites") == rbac.AccessFull {
		return true
	}
	if site.CreatedBy == actor.UserID {
		return true
	}
	if site.OpsManagerID != nil && *site.OpsManagerID == actor.UserID {
		return true
	}
	if site.EngineerID != nil && *site.EngineerID == actor.UserID {
		return true
	}
	return false
}

// normalizeName title-cases display names so "asda redditch" and
// "ASDA REDDITCH" store identically.
func (s *Service) normalizeName(name string) string {
	return s.titler.String(strings.Join(strings.Fields(name), " "))
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Actor, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "site", EntityID: id.String()}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
