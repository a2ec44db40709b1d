package approval

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	records map[uuid.UUID]ScopingApproval
	actions map[uuid.UUID][]Action
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records: make(map[uuid.UUID]ScopingApproval),
		actions: make(map[uuid.UUID][]Action),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (ScopingApproval, error) {
	rec, ok := r.records[id]
	if !ok {
		return ScopingApproval{}, ErrNotFound
	}
	return rec, nil
}

func (r *memoryRepo) List(ctx context.Context, f Filter) ([]ScopingApproval, error) {
	var out []ScopingApproval
	for _, rec := range r.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.SiteID != uuid.Nil && rec.SiteID != f.SiteID {
			continue
		}
		if f.EngineerID != "" && rec.EngineerID != f.EngineerID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *memoryRepo) ListActions(ctx context.Context, approvalID uuid.UUID) ([]Action, error) {
	return append([]Action(nil), r.actions[approvalID]...), nil
}

func (t *memoryTx) Insert(ctx context.Context, rec ScopingApproval) error {
	for _, existing := range t.repo.records {
		if existing.SiteID == rec.SiteID && existing.Status == StatusPending {
			return ErrPendingExists
		}
	}
	t.repo.records[rec.ID] = rec
	return nil
}

func (t *memoryTx) ApplyDecision(ctx context.Context, id uuid.UUID, d Decision) error {
	rec, ok := t.repo.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != StatusPending {
		return ErrTerminalState
	}
	rec.Status = d.Status
	rec.ReviewedBy = &d.ReviewedBy
	rec.ReviewedAt = &d.ReviewedAt
	rec.ReviewComment = &d.ReviewComment
	if d.RejectionReason != "" {
		rec.RejectionReason = &d.RejectionReason
	}
	rec.UpdatedAt = d.ReviewedAt
	t.repo.records[id] = rec
	return nil
}

func (t *memoryTx) RecordAction(ctx context.Context, a Action) error {
	t.repo.actions[a.ApprovalID] = append(t.repo.actions[a.ApprovalID], a)
	return nil
}

type fixedSettings struct {
	threshold time.Duration
}

func (s fixedSettings) ApprovalResponseTime(ctx context.Context) (time.Duration, error) {
	return s.threshold, nil
}

type captureNotifier struct {
	reviewed  []ScopingApproval
	submitted []ScopingApproval
}

func (n *captureNotifier) ApprovalReviewed(ctx context.Context, rec ScopingApproval, d Decision) error {
	n.reviewed = append(n.reviewed, rec)
	return nil
}

func (n *captureNotifier) ApprovalSubmitted(ctx context.Context, rec ScopingApproval) error {
	n.submitted = append(n.submitted, rec)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *captureNotifier) {
	notifier := &captureNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, fixedSettings{threshold: 24 * time.Hour}, notifier, nil, logger)
	return svc, notifier
}

func TestSubmitCreatesPendingVersionOne(t *testing.T) {
	repo := newMemoryRepo()
	svc, notifier := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, engineerActor, SubmitInput{
		SiteID:       uuid.New(),
		SiteName:     "ASDA Redditch",
		EngineerName: "Jordan Hale",
		Scoping:      ScopingData{SelectedHardware: []LineItem{{ID: "kiosk", Quantity: 2}}},
		Costs:        CostBreakdown{HardwareCost: 4000, TotalInvestment: 6000},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, rec.Status)
	require.Equal(t, 1, rec.Version)
	require.Equal(t, "eng-1", rec.EngineerID)
	require.Nil(t, rec.PreviousVersionID)

	actions, err := repo.ListActions(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, ActionSubmit, actions[0].Action)
	require.Len(t, notifier.submitted, 1)
}

func TestSubmitRejectsSecondPendingForSite(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	siteID := uuid.New()

	in := SubmitInput{SiteID: siteID, SiteName: "ASDA Redditch", EngineerName: "Jordan Hale"}
	_, err := svc.Submit(ctx, engineerActor, in)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, engineerActor, in)
	require.ErrorIs(t, err, ErrPendingExists)
}

func TestSubmitRequiresEngineerRole(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Submit(context.Background(), opsActor, SubmitInput{SiteID: uuid.New()})
	require.ErrorIs(t, err, ErrUnauthorizedActor)
}

func TestApprovePersistsDecisionAndLogsAction(t *testing.T) {
	repo := newMemoryRepo()
	svc, notifier := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, engineerActor, SubmitInput{SiteID: uuid.New(), SiteName: "ASDA Redditch", EngineerName: "Jordan Hale"})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, opsActor, rec.ID, "Budget confirmed")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	require.Equal(t, "ops-1", *approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)
	require.NotNil(t, approved.ReviewComment)
	require.Equal(t, "Budget confirmed", *approved.ReviewComment)

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)

	actions, err := repo.ListActions(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, ActionApprove, actions[1].Action)
	require.Len(t, notifier.reviewed, 1)
}

func TestReviewFailureLeavesRecordUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc, notifier := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, engineerActor, SubmitInput{SiteID: uuid.New(), SiteName: "ASDA Redditch", EngineerName: "Jordan Hale"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, opsActor, rec.ID, "")
	require.ErrorIs(t, err, ErrEmptyComment)

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Nil(t, stored.ReviewedBy)
	require.Nil(t, stored.ReviewedAt)
	require.Nil(t, stored.ReviewComment)
	require.Empty(t, notifier.reviewed)
}

func TestEngineerVisibilityScopedToOwn(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	mine, err := svc.Submit(ctx, engineerActor, SubmitInput{SiteID: uuid.New(), SiteName: "ASDA Redditch", EngineerName: "Jordan Hale"})
	require.NoError(t, err)

	other := rbac.Actor{UserID: "eng-2", Role: rbac.RoleDeploymentEngineer}
	theirs, err := svc.Submit(ctx, other, SubmitInput{SiteID: uuid.New(), SiteName: "Tesco Oldbury", EngineerName: "Sam Reed"})
	require.NoError(t, err)

	list, err := svc.List(ctx, engineerActor, Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, mine.ID, list[0].ID)

	_, err = svc.Get(ctx, engineerActor, theirs.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// reviewers see everything
	list, err = svc.List(ctx, opsActor, Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestPendingFlagsOverdueRecords(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	fresh, err := svc.Submit(ctx, engineerActor, SubmitInput{SiteID: uuid.New(), SiteName: "ASDA Redditch", EngineerName: "Jordan Hale"})
	require.NoError(t, err)

	stale, err := svc.Submit(ctx, rbac.Actor{UserID: "eng-2", Role: rbac.RoleDeploymentEngineer},
		SubmitInput{SiteID: uuid.New(), SiteName: "Tesco Oldbury", EngineerName: "Sam Reed"})
	require.NoError(t, err)
	rec := repo.records[stale.ID]
	rec.SubmittedAt = time.Now().Add(-25 * time.Hour)
	repo.records[stale.ID] = rec

	pending, err := svc.Pending(ctx, opsActor)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	byID := map[uuid.UUID]PendingApproval{}
	for _, p := range pending {
		byID[p.ID] = p
	}
	require.False(t, byID[fresh.ID].Overdue)
	require.True(t, byID[stale.ID].Overdue)
}

func TestScopingWorkflowEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	siteID := uuid.New()

	v1, err := svc.Submit(ctx, engineerActor, SubmitInput{
		SiteID:       siteID,
		SiteName:     "ASDA Redditch",
		EngineerName: "Jordan Hale",
		Costs:        CostBreakdown{TotalInvestment: 15000},
	})
	require.NoError(t, err)

	// reviewer pushes back
	changed, err := svc.RequestChanges(ctx, opsActor, v1.ID, "Trim the contingency line")
	require.NoError(t, err)
	require.Equal(t, StatusChangesRequested, changed.Status)

	// engineer revises and resubmits
	v2, err := svc.Resubmit(ctx, engineerActor, ResubmitInput{
		PreviousApprovalID: v1.ID,
		Costs:              CostBreakdown{TotalInvestment: 13500},
	})
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)
	require.NotNil(t, v2.PreviousVersionID)
	require.Equal(t, v1.ID, *v2.PreviousVersionID)
	require.Equal(t, StatusPending, v2.Status)

	// version 2 gets approved
	approved, err := svc.Approve(ctx, opsActor, v2.ID, "Revised budget accepted")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	// the approved version is terminal
	_, err = svc.Reject(ctx, opsActor, v2.ID, "changed my mind", "")
	require.ErrorIs(t, err, ErrTerminalState)

	// history carries the resolved version only
	history, err := svc.HistoryFor(ctx, opsActor)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, v2.ID, history[0].ID)
}

func TestHistoryOrderedByReviewTime(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Submit(ctx, engineerActor, SubmitInput{SiteID: uuid.New(), SiteName: "ASDA Redditch", EngineerName: "Jordan Hale"})
	require.NoError(t, err)
	second, err := svc.Submit(ctx, rbac.Actor{UserID: "eng-2", Role: rbac.RoleDeploymentEngineer},
		SubmitInput{SiteID: uuid.New(), SiteName: "Tesco Oldbury", EngineerName: "Sam Reed"})
	require.NoError(t, err)

	base := time.Now()
	svc.now = func() time.Time { return base }
	_, err = svc.Reject(ctx, opsActor, first.ID, "over budget", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(time.Hour) }
	_, err = svc.Approve(ctx, opsActor, second.ID, "approved")
	require.NoError(t, err)

	history, err := svc.HistoryFor(ctx, opsActor)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, second.ID, history[0].ID)
	require.Equal(t, first.ID, history[1].ID)
}
