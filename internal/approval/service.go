package approval

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
)

// SettingsPort supplies the configured review response threshold.
type SettingsPort interface {
	ApprovalResponseTime(ctx context.Context) (time.Duration, error)
}

// NotifierPort dispatches review outcome notifications. Implementations
// enqueue asynchronously; delivery failures must not fail the transition.
type NotifierPort interface {
	ApprovalReviewed(ctx context.Context, rec ScopingApproval, d Decision) error
	ApprovalSubmitted(ctx context.Context, rec ScopingApproval) error
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service coordinates the scoping approval workflow.
type Service struct {
	repo     RepositoryPort
	settings SettingsPort
	notifier NotifierPort
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewService constructs the approval service. notifier and audit may be
// nil in tests.
func NewService(repo RepositoryPort, settings SettingsPort, notifier NotifierPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		settings: settings,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// SubmitInput carries a new scoping submission.
type SubmitInput struct {
	SiteID       uuid.UUID
	SiteName     string
	EngineerName string
	Scoping      ScopingData
	Costs        CostBreakdown
}

// Submit creates version 1 of a site's scoping approval.
func (s *Service) Submit(ctx context.Context, actor rbac.Actor, in SubmitInput) (ScopingApproval, error) {
	if actor.Role != rbac.RoleDeploymentEngineer && actor.Role != rbac.RoleAdmin {
		return ScopingApproval{}, ErrUnauthorizedActor
	}
	now := s.now()
	rec := ScopingApproval{
		ID:           s.newID(),
		SiteID:       in.SiteID,
		SiteName:     in.SiteName,
		EngineerID:   actor.UserID,
		EngineerName: in.EngineerName,
		Status:       StatusPending,
		SubmittedAt:  now,
		Scoping:      in.Scoping,
		Costs:        in.Costs,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, rec); err != nil {
			return err
		}
		return tx.RecordAction(ctx, s.action(rec.ID, ActionSubmit, actor, nil, map[string]any{"version": rec.Version}))
	})
	if err != nil {
		return ScopingApproval{}, err
	}
	s.recordAudit(ctx, actor, "scoping.submit", rec.ID)
	s.notifySubmitted(ctx, rec)
	return rec, nil
}

// ResubmitInput carries a revised submission for a changes_requested record.
type ResubmitInput struct {
	PreviousApprovalID uuid.UUID
	Scoping            ScopingData
	Costs              CostBreakdown
}

// Resubmit creates the successor version of a changes_requested approval.
func (s *Service) Resubmit(ctx context.Context, actor rbac.Actor, in ResubmitInput) (ScopingApproval, error) {
	prev, err := s.repo.Get(ctx, in.PreviousApprovalID)
	if err != nil {
		return ScopingApproval{}, err
	}
	now := s.now()
	rec, err := Resubmit(prev, actor, in.Scoping, in.Costs, now)
	if err != nil {
		return ScopingApproval{}, err
	}
	rec.ID = s.newID()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, rec); err != nil {
			return err
		}
		return tx.RecordAction(ctx, s.action(rec.ID, ActionResubmit, actor, nil, map[string]any{
			"version":             rec.Version,
			"previous_version_id": prev.ID.String(),
		}))
	})
	if err != nil {
		return ScopingApproval{}, err
	}
	s.recordAudit(ctx, actor, "scoping.resubmit", rec.ID)
	s.notifySubmitted(ctx, rec)
	return rec, nil
}

// Approve transitions a pending record to approved.
func (s *Service) Approve(ctx context.Context, actor rbac.Actor, id uuid.UUID, comment string) (ScopingApproval, error) {
	return s.review(ctx, actor, id, ActionApprove, func(rec ScopingApproval, now time.Time) (Decision, error) {
		return Approve(rec, actor, comment, now)
	})
}

// Reject transitions a pending record to rejected.
func (s *Service) Reject(ctx context.Context, actor rbac.Actor, id uuid.UUID, comment, reason string) (ScopingApproval, error) {
	return s.review(ctx, actor, id, ActionReject, func(rec ScopingApproval, now time.Time) (Decision, error) {
		return Reject(rec, actor, comment, reason, now)
	})
}

// RequestChanges transitions a pending record to changes_requested.
func (s *Service) RequestChanges(ctx context.Context, actor rbac.Actor, id uuid.UUID, comment string) (ScopingApproval, error) {
	return s.review(ctx, actor, id, ActionRequestChanges, func(rec ScopingApproval, now time.Time) (Decision, error) {
		return RequestChanges(rec, actor, comment, now)
	})
}

func (s *Service) review(ctx context.Context, actor rbac.Actor, id uuid.UUID, action ActionType,
	decide func(ScopingApproval, time.Time) (Decision, error)) (ScopingApproval, error) {

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return ScopingApproval{}, err
	}
	d, err := decide(rec, s.now())
	if err != nil {
		return ScopingApproval{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.ApplyDecision(ctx, id, d); err != nil {
			return err
		}
		return tx.RecordAction(ctx, s.action(id, action, actor, &d.ReviewComment, nil))
	})
	if err != nil {
		return ScopingApproval{}, err
	}

	rec.Status = d.Status
	rec.ReviewedBy = &d.ReviewedBy
	rec.ReviewedAt = &d.ReviewedAt
	rec.ReviewComment = &d.ReviewComment
	if d.RejectionReason != "" {
		rec.RejectionReason = &d.RejectionReason
	}
	rec.UpdatedAt = d.ReviewedAt

	s.recordAudit(ctx, actor, "scoping."+string(action), id)
	if s.notifier != nil {
		if err := s.notifier.ApprovalReviewed(ctx, rec, d); err != nil {
			s.logger.Warn("approval notification enqueue failed",
				slog.String("approval_id", id.String()), slog.Any("error", err))
		}
	}
	return rec, nil
}

// Get returns one approval, restricted to the actor's visibility tier.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (ScopingApproval, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return ScopingApproval{}, err
	}
	if s.visibility(actor) == rbac.AccessOwn && rec.EngineerID != actor.UserID {
		return ScopingApproval{}, ErrNotFound
	}
	return rec, nil
}

// List returns approvals matching the filter, scoped to what the actor
// may see. Engineers only see their own submissions.
func (s *Service) List(ctx context.Context, actor rbac.Actor, f Filter) ([]ScopingApproval, error) {
	if s.visibility(actor) == rbac.AccessOwn {
		f.EngineerID = actor.UserID
	}
	return s.repo.List(ctx, f)
}

// PendingApproval decorates a pending record with its overdue flag.
type PendingApproval struct {
	ScopingApproval
	Overdue bool `json:"overdue"`
}

// Pending lists open submissions with overdue flags computed against the
// configured response threshold.
func (s *Service) Pending(ctx context.Context, actor rbac.Actor) ([]PendingApproval, error) {
	records, err := s.List(ctx, actor, Filter{Status: StatusPending})
	if err != nil {
		return nil, err
	}
	threshold, err := s.settings.ApprovalResponseTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("approval: load response threshold: %w", err)
	}
	now := s.now()
	out := make([]PendingApproval, 0, len(records))
	for _, rec := range records {
		out = append(out, PendingApproval{ScopingApproval: rec, Overdue: Overdue(rec, now, threshold)})
	}
	return out, nil
}

// HistoryFor lists resolved approvals, most recently reviewed first.
func (s *Service) HistoryFor(ctx context.Context, actor rbac.Actor) ([]ScopingApproval, error) {
	var scope Filter
	if s.visibility(actor) == rbac.AccessOwn {
		scope.EngineerID = actor.UserID
	}
	approved, err := s.repo.List(ctx, Filter{Status: StatusApproved, EngineerID: scope.EngineerID})
	if err != nil {
		return nil, err
	}
	rejected, err := s.repo.List(ctx, Filter{Status: StatusRejected, EngineerID: scope.EngineerID})
	if err != nil {
		return nil, err
	}
	return History(append(approved, rejected...)), nil
}

// Actions returns the action log for an approval the actor may see.
func (s *Service) Actions(ctx context.Context, actor rbac.Actor, id uuid.UUID) ([]Action, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.ListActions(ctx, id)
}

func (s *Service) visibility(actor rbac.Actor) rbac.AccessLevel {
	return rbac.GroupLevel(actor.Role, "/approvals-procurement")
}

func (s *Service) action(approvalID uuid.UUID, t ActionType, actor rbac.Actor, comment *string, meta map[string]any) Action {
	return Action{
		ID:              s.newID(),
		ApprovalID:      approvalID,
		Action:          t,
		PerformedBy:     actor.UserID,
		PerformedByRole: string(actor.Role),
		PerformedAt:     s.now(),
		Comment:         comment,
		Metadata:        meta,
	}
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Actor, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "scoping_approval",
		EntityID: id.String(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notifySubmitted(ctx context.Context, rec ScopingApproval) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ApprovalSubmitted(ctx, rec); err != nil {
		s.logger.Warn("submission notification enqueue failed",
			slog.String("approval_id", rec.ID.String()), slog.Any("error", err))
	}
}
