package settings

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/stretchr/testify/require"
)

type memorySettingsRepo struct {
	values map[string]Setting
	gets   int
}

func newMemorySettingsRepo() *memorySettingsRepo {
	return &memorySettingsRepo{values: make(map[string]Setting)}
}

func (r *memorySettingsRepo) Get(ctx context.Context, key string) (Setting, error) {
	r.gets++
	s, ok := r.values[key]
	if !ok {
		return Setting{}, ErrNotFound
	}
	return s, nil
}

func (r *memorySettingsRepo) List(ctx context.Context) ([]Setting, error) {
	var out []Setting
	for _, s := range r.values {
		out = append(out, s)
	}
	return out, nil
}

func (r *memorySettingsRepo) Upsert(ctx context.Context, s Setting) error {
	r.values[s.Key] = s
	return nil
}

func newTestService(t *testing.T) (*Service, *memorySettingsRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newMemorySettingsRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, NewCache(client, time.Minute), logger), repo
}

var admin = rbac.Actor{UserID: "admin-1", Role: rbac.RoleAdmin}

func TestApprovalResponseTimeDefault(t *testing.T) {
	svc, _ := newTestService(t)

	d, err := svc.ApprovalResponseTime(context.Background())
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, d)
}

func TestApprovalResponseTimeOverride(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, KeyApprovalResponseTime, "48h")
	require.NoError(t, err)
	require.Contains(t, repo.values, KeyApprovalResponseTime)

	d, err := svc.ApprovalResponseTime(ctx)
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, d)
}

func TestGetServesFromCache(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, KeyApprovalResponseTime, "24h")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Get(ctx, KeyApprovalResponseTime)
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.gets)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, KeyApprovalResponseTime, "24h")
	require.NoError(t, err)

	d, err := svc.ApprovalResponseTime(ctx)
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, d)
	require.Equal(t, 1, repo.gets)

	_, err = svc.Update(ctx, admin, KeyApprovalResponseTime, "12h")
	require.NoError(t, err)

	d, err = svc.ApprovalResponseTime(ctx)
	require.NoError(t, err)
	require.Equal(t, 12*time.Hour, d)
	require.Equal(t, 2, repo.gets)
}

func TestUpdateRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	for _, actor := range []rbac.Actor{
		{UserID: "ops-1", Role: rbac.RoleOpsManager},
		{UserID: "eng-1", Role: rbac.RoleDeploymentEngineer},
	} {
		_, err := svc.Update(context.Background(), actor, KeyApprovalResponseTime, "48h")
		require.ErrorIs(t, err, ErrForbidden, actor.Role)
	}
}

func TestUpdateValidatesDuration(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, KeyApprovalResponseTime, "soon")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = svc.Update(ctx, admin, KeyApprovalResponseTime, "-2h")
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestInvalidStoredValueFallsBack(t *testing.T) {
	svc, repo := newTestService(t)
	repo.values[KeyApprovalResponseTime] = Setting{Key: KeyApprovalResponseTime, Value: "garbage"}

	d, err := svc.ApprovalResponseTime(context.Background())
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, d)
}
