package sites

import (
	"context"
	"io"
	"sort"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/stretchr/testify/require"
)

type memorySiteRepo struct {
	sites   map[uuid.UUID]Site
	studies map[uuid.UUID]Study
}

func newMemorySiteRepo() *memorySiteRepo {
	return &memorySiteRepo{sites: make(map[uuid.UUID]Site), studies: make(map[uuid.UUID]Study)}
}

func (r *memorySiteRepo) Insert(ctx context.Context, site Site) error {
	for _, existing := range r.sites {
		if existing.UnitCode == site.UnitCode {
			return ErrDuplicateUnitCode
		}
	}
	r.sites[site.ID] = site
	return nil
}

func (r *memorySiteRepo) Get(ctx context.Context, id uuid.UUID) (Site, error) {
	site, ok := r.sites[id]
	if !ok {
		return Site{}, ErrNotFound
	}
	return site, nil
}

func (r *memorySiteRepo) List(ctx context.Context, f Filter) ([]Site, error) {
	var out []Site
	for _, site := range r.sites {
		if f.Stage != "" && site.Stage != f.Stage {
			continue
		}
		if f.AssignedTo != "" {
			assigned := site.CreatedBy == f.AssignedTo ||
				(site.OpsManagerID != nil && *site.OpsManagerID == f.AssignedTo) ||
				(site.EngineerID != nil && *site.EngineerID == f.AssignedTo)
			if !assigned {
				continue
			}
		}
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memorySiteRepo) Update(ctx context.Context, site Site) error {
	if _, ok := r.sites[site.ID]; !ok {
		return ErrNotFound
	}
	r.sites[site.ID] = site
	return nil
}

func (r *memorySiteRepo) UpdateStage(ctx context.Context, id uuid.UUID, from, to Stage) error {
	site, ok := r.sites[id]
	if !ok {
		return ErrNotFound
	}
	if site.Stage != from {
		return ErrInvalidStage
	}
	site.Stage = to
	r.sites[id] = site
	return nil
}

func (r *memorySiteRepo) InsertStudy(ctx context.Context, study Study) error {
	r.studies[study.SiteID] = study
	return nil
}

func (r *memorySiteRepo) GetStudy(ctx context.Context, siteID uuid.UUID) (Study, error) {
	st, ok := r.studies[siteID]
	if !ok {
		return Study{}, ErrNotFound
	}
	return st, nil
}

func (r *memorySiteRepo) UpdateStudy(ctx context.Context, study Study) error {
	r.studies[study.SiteID] = study
	return nil
}

var (
	admin    = rbac.Actor{UserID: "admin-1", Role: rbac.RoleAdmin}
	ops      = rbac.Actor{UserID: "ops-1", Role: rbac.RoleOpsManager}
	engineer = rbac.Actor{UserID: "eng-1", Role: rbac.RoleDeploymentEngineer}
)

func newTestService() (*Service, *memorySiteRepo) {
	repo := newMemorySiteRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, nil, logger), repo
}

func TestCreateNormalizesFields(t *testing.T) {
	svc, _ := newTestService()

	site, err := svc.Create(context.Background(), engineer, CreateInput{
		Name:         "  asda   redditch ",
		Organization: "Compass Group",
		UnitCode:     "cg-0042",
		Postcode:     "b97 4dq",
	})
	require.NoError(t, err)
	require.Equal(t, "Asda Redditch", site.Name)
	require.Equal(t, "CG-0042", site.UnitCode)
	require.Equal(t, "B97 4DQ", site.Postcode)
	require.Equal(t, StageCreated, site.Stage)
	require.Equal(t, PriorityMedium, site.Priority)
	require.NotNil(t, site.EngineerID)
	require.Equal(t, "eng-1", *site.EngineerID)
}

func TestCreateRejectsDuplicateUnitCode(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, CreateInput{Name: "Asda Redditch", Organization: "Compass", UnitCode: "CG-0042"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, admin, CreateInput{Name: "Other", Organization: "Compass", UnitCode: "cg-0042"})
	require.ErrorIs(t, err, ErrDuplicateUnitCode)
}

func TestListScopedByAssignment(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mine, err := svc.Create(ctx, engineer, CreateInput{Name: "Asda Redditch", Organization: "Compass", UnitCode: "CG-1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, CreateInput{Name: "Tesco Oldbury", Organization: "Compass", UnitCode: "CG-2"})
	require.NoError(t, err)

	got, err := svc.List(ctx, engineer, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, mine.ID, got[0].ID)

	got, err = svc.List(ctx, admin, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestGetHidesUnassignedSites(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	site, err := svc.Create(ctx, admin, CreateInput{Name: "Tesco Oldbury", Organization: "Compass", UnitCode: "CG-2"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, engineer, site.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Assign(ctx, admin, site.ID, nil, &engineer.UserID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, engineer, site.ID)
	require.NoError(t, err)
	require.Equal(t, site.ID, got.ID)
}

func TestAssignRequiresFullAccess(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	site, err := svc.Create(ctx, ops, CreateInput{Name: "Asda Redditch", Organization: "Compass", UnitCode: "CG-1"})
	require.NoError(t, err)

	_, err = svc.Assign(ctx, ops, site.ID, &ops.UserID, nil)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Assign(ctx, admin, site.ID, &ops.UserID, &engineer.UserID)
	require.NoError(t, err)
}

func TestStageProgression(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	site, err := svc.Create(ctx, engineer, CreateInput{Name: "Asda Redditch", Organization: "Compass", UnitCode: "CG-1"})
	require.NoError(t, err)

	// skipping ahead is rejected
	_, err = svc.AdvanceStage(ctx, engineer, site.ID, StageApprovalPending)
	require.ErrorIs(t, err, ErrInvalidStage)

	path := []Stage{
		StageStudyInProgress, StageStudyCompleted, StageHardwareScoped,
		StageApprovalPending, StageApprovalApproved, StageDeploymentScheduled,
		StageDeploymentInProgress, StageDeploymentCompleted, StageLiveReady, StageLive,
	}
	for _, next := range path {
		site, err = svc.AdvanceStage(ctx, engineer, site.ID, next)
		require.NoError(t, err, next)
		require.Equal(t, next, site.Stage)
	}

	// live is terminal
	_, err = svc.AdvanceStage(ctx, engineer, site.ID, StageCreated)
	require.ErrorIs(t, err, ErrInvalidStage)
}

func TestRejectedApprovalLoopsBackToScoping(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	site, err := svc.Create(ctx, engineer, CreateInput{Name: "Asda Redditch", Organization: "Compass", UnitCode: "CG-1"})
	require.NoError(t, err)
	for _, next := range []Stage{StageStudyInProgress, StageStudyCompleted, StageHardwareScoped, StageApprovalPending, StageApprovalRejected} {
		site, err = svc.AdvanceStage(ctx, engineer, site.ID, next)
		require.NoError(t, err)
	}

	site, err = svc.AdvanceStage(ctx, engineer, site.ID, StageHardwareScoped)
	require.NoError(t, err)
	require.Equal(t, StageHardwareScoped, site.Stage)
}

func TestStudyLifecycle(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	site, err := svc.Create(ctx, engineer, CreateInput{Name: "Asda Redditch", Organization: "Compass", UnitCode: "CG-1"})
	require.NoError(t, err)

	study, err := svc.SubmitStudy(ctx, engineer, site.ID, "3 tills, weak wifi in kitchen")
	require.NoError(t, err)
	require.Equal(t, StudyInProgress, study.Status)
	require.Equal(t, StageStudyInProgress, repo.sites[site.ID].Stage)

	study, err = svc.CompleteStudy(ctx, engineer, site.ID, "3 tills, wifi fixed, cabling ready")
	require.NoError(t, err)
	require.Equal(t, StudyCompleted, study.Status)
	require.Equal(t, StageStudyCompleted, repo.sites[site.ID].Stage)
}
