package deployment

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/sites"
	"github.com/stretchr/testify/require"
)

type memoryDeployRepo struct {
	deployments map[uuid.UUID]Deployment
	items       map[uuid.UUID][]ChecklistItem
}

func newMemoryDeployRepo() *memoryDeployRepo {
	return &memoryDeployRepo{
		deployments: make(map[uuid.UUID]Deployment),
		items:       make(map[uuid.UUID][]ChecklistItem),
	}
}

func (r *memoryDeployRepo) Insert(ctx context.Context, d Deployment, items []ChecklistItem) error {
	r.deployments[d.ID] = d
	r.items[d.ID] = items
	return nil
}

func (r *memoryDeployRepo) Get(ctx context.Context, id uuid.UUID) (Deployment, error) {
	d, ok := r.deployments[id]
	if !ok {
		return Deployment{}, ErrNotFound
	}
	return d, nil
}

func (r *memoryDeployRepo) GetBySite(ctx context.Context, siteID uuid.UUID) (Deployment, error) {
	for _, d := range r.deployments {
		if d.SiteID == siteID {
			return d, nil
		}
	}
	return Deployment{}, ErrNotFound
}

func (r *memoryDeployRepo) Update(ctx context.Context, d Deployment) error {
	if _, ok := r.deployments[d.ID]; !ok {
		return ErrNotFound
	}
	r.deployments[d.ID] = d
	return nil
}

func (r *memoryDeployRepo) ListItems(ctx context.Context, deploymentID uuid.UUID) ([]ChecklistItem, error) {
	return append([]ChecklistItem(nil), r.items[deploymentID]...), nil
}

func (r *memoryDeployRepo) UpdateItem(ctx context.Context, item ChecklistItem) error {
	items := r.items[item.DeploymentID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryDeployRepo) CountOpenItems(ctx context.Context, deploymentID uuid.UUID) (int, error) {
	n := 0
	for _, item := range r.items[deploymentID] {
		if item.Status != ItemCompleted && item.Status != ItemFailed {
			n++
		}
	}
	return n, nil
}

type fakeSitePort struct {
	stages map[uuid.UUID]sites.Stage
}

func (f *fakeSitePort) Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (sites.Site, error) {
	stage, ok := f.stages[id]
	if !ok {
		return sites.Site{}, sites.ErrNotFound
	}
	return sites.Site{ID: id, Stage: stage}, nil
}

func (f *fakeSitePort) AdvanceStage(ctx context.Context, actor rbac.Actor, id uuid.UUID, next sites.Stage) (sites.Site, error) {
	stage, ok := f.stages[id]
	if !ok {
		return sites.Site{}, sites.ErrNotFound
	}
	if !stage.CanAdvanceTo(next) {
		return sites.Site{}, sites.ErrInvalidStage
	}
	f.stages[id] = next
	return sites.Site{ID: id, Stage: next}, nil
}

var engineer = rbac.Actor{UserID: "eng-1", Role: rbac.RoleDeploymentEngineer}

func newTestService(siteStage sites.Stage) (*Service, *memoryDeployRepo, *fakeSitePort, uuid.UUID) {
	repo := newMemoryDeployRepo()
	siteID := uuid.New()
	port := &fakeSitePort{stages: map[uuid.UUID]sites.Stage{siteID: siteStage}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, port, nil, logger), repo, port, siteID
}

func TestScheduleSeedsChecklistAndMovesSite(t *testing.T) {
	svc, repo, port, siteID := newTestService(sites.StageApprovalApproved)
	ctx := context.Background()

	d, err := svc.Schedule(ctx, engineer, siteID, "eng-1", time.Now().Add(72*time.Hour))
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, d.Status)
	require.Len(t, repo.items[d.ID], len(DefaultChecklist))
	require.Equal(t, sites.StageDeploymentScheduled, port.stages[siteID])
}

func TestScheduleRequiresApprovedSite(t *testing.T) {
	svc, _, _, siteID := newTestService(sites.StageStudyCompleted)

	_, err := svc.Schedule(context.Background(), engineer, siteID, "eng-1", time.Now())
	require.ErrorIs(t, err, sites.ErrInvalidStage)
}

func TestScheduleRejectsSecondActiveDeployment(t *testing.T) {
	svc, _, port, siteID := newTestService(sites.StageApprovalApproved)
	ctx := context.Background()

	_, err := svc.Schedule(ctx, engineer, siteID, "eng-1", time.Now())
	require.NoError(t, err)

	// even if the site were eligible again, the open deployment blocks it
	port.stages[siteID] = sites.StageApprovalApproved
	_, err = svc.Schedule(ctx, engineer, siteID, "eng-1", time.Now())
	require.ErrorIs(t, err, ErrAlreadyScheduled)
}

func TestCompleteBlockedByOpenChecklist(t *testing.T) {
	svc, repo, _, siteID := newTestService(sites.StageApprovalApproved)
	ctx := context.Background()

	d, err := svc.Schedule(ctx, engineer, siteID, "eng-1", time.Now())
	require.NoError(t, err)
	_, err = svc.Start(ctx, engineer, d.ID)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, engineer, d.ID)
	require.ErrorIs(t, err, ErrChecklistIncomplete)

	for _, item := range repo.items[d.ID] {
		_, err = svc.UpdateChecklistItem(ctx, engineer, d.ID, item.ID, ItemCompleted, "")
		require.NoError(t, err)
	}

	done, err := svc.Complete(ctx, engineer, d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
}

func TestGoLiveAdvancesSiteToLive(t *testing.T) {
	svc, repo, port, siteID := newTestService(sites.StageApprovalApproved)
	ctx := context.Background()

	d, err := svc.Schedule(ctx, engineer, siteID, "eng-1", time.Now())
	require.NoError(t, err)
	_, err = svc.Start(ctx, engineer, d.ID)
	require.NoError(t, err)
	for _, item := range repo.items[d.ID] {
		_, err = svc.UpdateChecklistItem(ctx, engineer, d.ID, item.ID, ItemCompleted, "")
		require.NoError(t, err)
	}
	_, err = svc.Complete(ctx, engineer, d.ID)
	require.NoError(t, err)

	live, err := svc.GoLive(ctx, engineer, d.ID)
	require.NoError(t, err)
	require.NotNil(t, live.WentLiveAt)
	require.Equal(t, sites.StageLive, port.stages[siteID])

	// go-live is one-shot
	_, err = svc.GoLive(ctx, engineer, d.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStartRequiresScheduledStatus(t *testing.T) {
	svc, repo, _, siteID := newTestService(sites.StageApprovalApproved)
	ctx := context.Background()

	d, err := svc.Schedule(ctx, engineer, siteID, "eng-1", time.Now())
	require.NoError(t, err)
	_, err = svc.Start(ctx, engineer, d.ID)
	require.NoError(t, err)

	_, err = svc.Start(ctx, engineer, d.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, StatusInProgress, repo.deployments[d.ID].Status)
}
