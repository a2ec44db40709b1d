package approval

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/stretchr/testify/require"
)

var (
	opsActor      = rbac.Actor{UserID: "ops-1", Role: rbac.RoleOpsManager}
	adminActor    = rbac.Actor{UserID: "admin-1", Role: rbac.RoleAdmin}
	engineerActor = rbac.Actor{UserID: "eng-1", Role: rbac.RoleDeploymentEngineer}
)

func pendingRecord() ScopingApproval {
	return ScopingApproval{
		ID:           uuid.New(),
		SiteID:       uuid.New(),
		SiteName:     "ASDA Redditch",
		EngineerID:   "eng-1",
		EngineerName: "Jordan Hale",
		Status:       StatusPending,
		SubmittedAt:  time.Now().Add(-time.Hour),
		Version:      1,
	}
}

func TestApproveSetsAllReviewerFields(t *testing.T) {
	rec := pendingRecord()
	now := time.Now()

	d, err := Approve(rec, opsActor, "Budget looks right", now)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, d.Status)
	require.Equal(t, "ops-1", d.ReviewedBy)
	require.Equal(t, now, d.ReviewedAt)
	require.Equal(t, "Budget looks right", d.ReviewComment)
	require.Empty(t, d.RejectionReason)
}

func TestRejectDefaultsReasonToComment(t *testing.T) {
	rec := pendingRecord()

	d, err := Reject(rec, opsActor, "Costs exceed allocation", "", time.Now())
	require.NoError(t, err)
	require.Equal(t, StatusRejected, d.Status)
	require.Equal(t, "Costs exceed allocation", d.RejectionReason)

	d, err = Reject(rec, opsActor, "See notes", "Hardware list incomplete", time.Now())
	require.NoError(t, err)
	require.Equal(t, "Hardware list incomplete", d.RejectionReason)
}

func TestEmptyCommentRejectedForEveryRole(t *testing.T) {
	rec := pendingRecord()
	for _, actor := range []rbac.Actor{opsActor, adminActor, engineerActor} {
		_, err := Approve(rec, actor, "", time.Now())
		require.ErrorIs(t, err, ErrEmptyComment, actor.Role)

		_, err = Reject(rec, actor, "   ", "reason", time.Now())
		require.ErrorIs(t, err, ErrEmptyComment, actor.Role)

		_, err = RequestChanges(rec, actor, "\t\n", time.Now())
		require.ErrorIs(t, err, ErrEmptyComment, actor.Role)
	}
}

func TestEngineerCannotReview(t *testing.T) {
	rec := pendingRecord()

	_, err := Approve(rec, engineerActor, "lgtm", time.Now())
	require.ErrorIs(t, err, ErrUnauthorizedActor)

	_, err = Reject(rec, engineerActor, "no", "", time.Now())
	require.ErrorIs(t, err, ErrUnauthorizedActor)

	_, err = RequestChanges(rec, engineerActor, "redo", time.Now())
	require.ErrorIs(t, err, ErrUnauthorizedActor)
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	for _, status := range []Status{StatusApproved, StatusRejected} {
		rec := pendingRecord()
		rec.Status = status

		_, err := Approve(rec, opsActor, "again", time.Now())
		require.ErrorIs(t, err, ErrTerminalState, status)

		_, err = Reject(rec, adminActor, "again", "", time.Now())
		require.ErrorIs(t, err, ErrTerminalState, status)

		_, err = RequestChanges(rec, opsActor, "again", time.Now())
		require.ErrorIs(t, err, ErrTerminalState, status)

		_, err = Resubmit(rec, engineerActor, ScopingData{}, CostBreakdown{}, time.Now())
		require.ErrorIs(t, err, ErrTerminalState, status)
	}
}

func TestChangesRequestedOnlyAllowsResubmit(t *testing.T) {
	rec := pendingRecord()
	rec.Status = StatusChangesRequested

	_, err := Approve(rec, opsActor, "ok now", time.Now())
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = Reject(rec, opsActor, "no", "", time.Now())
	require.ErrorIs(t, err, ErrInvalidState)

	next, err := Resubmit(rec, engineerActor, ScopingData{}, CostBreakdown{}, time.Now())
	require.NoError(t, err)
	require.Equal(t, StatusPending, next.Status)
}

func TestResubmitCreatesSuccessorVersion(t *testing.T) {
	rec := pendingRecord()
	rec.Status = StatusChangesRequested
	rec.Version = 3
	now := time.Now()

	data := ScopingData{SelectedHardware: []LineItem{{ID: "pos-terminal", Quantity: 4}}}
	costs := CostBreakdown{HardwareCost: 8000, TotalCapex: 9500, TotalInvestment: 12000}

	next, err := Resubmit(rec, engineerActor, data, costs, now)
	require.NoError(t, err)
	require.Equal(t, 4, next.Version)
	require.NotNil(t, next.PreviousVersionID)
	require.Equal(t, rec.ID, *next.PreviousVersionID)
	require.Equal(t, rec.SiteID, next.SiteID)
	require.Equal(t, rec.EngineerID, next.EngineerID)
	require.Equal(t, now, next.SubmittedAt)
	require.Equal(t, data, next.Scoping)
	require.Equal(t, costs, next.Costs)
	require.Nil(t, next.ReviewedBy)
	require.Nil(t, next.ReviewedAt)
}

func TestResubmitGuards(t *testing.T) {
	rec := pendingRecord()
	rec.Status = StatusChangesRequested

	// only the submitting engineer may resubmit
	_, err := Resubmit(rec, rbac.Actor{UserID: "eng-2", Role: rbac.RoleDeploymentEngineer}, ScopingData{}, CostBreakdown{}, time.Now())
	require.ErrorIs(t, err, ErrUnauthorizedActor)

	rec.Status = StatusPending
	_, err = Resubmit(rec, engineerActor, ScopingData{}, CostBreakdown{}, time.Now())
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestOverdueThreshold(t *testing.T) {
	now := time.Now()
	threshold := 24 * time.Hour

	rec := pendingRecord()
	rec.SubmittedAt = now.Add(-25 * time.Hour)
	require.True(t, Overdue(rec, now, threshold))

	rec.SubmittedAt = now.Add(-23 * time.Hour)
	require.False(t, Overdue(rec, now, threshold))

	rec.SubmittedAt = now.Add(-25 * time.Hour)
	rec.Status = StatusApproved
	require.False(t, Overdue(rec, now, threshold))

	rec.Status = StatusChangesRequested
	require.False(t, Overdue(rec, now, threshold))
}

func TestHistoryFiltersAndOrders(t *testing.T) {
	mk := func(status Status, reviewedAgo time.Duration) ScopingApproval {
		rec := pendingRecord()
		rec.Status = status
		if status.Terminal() {
			at := time.Now().Add(-reviewedAgo)
			rec.ReviewedAt = &at
		}
		return rec
	}

	oldApproved := mk(StatusApproved, 48*time.Hour)
	newRejected := mk(StatusRejected, 1*time.Hour)
	midApproved := mk(StatusApproved, 12*time.Hour)
	open := mk(StatusPending, 0)
	changes := mk(StatusChangesRequested, 0)

	got := History([]ScopingApproval{oldApproved, open, newRejected, changes, midApproved})
	require.Len(t, got, 3)
	require.Equal(t, newRejected.ID, got[0].ID)
	require.Equal(t, midApproved.ID, got[1].ID)
	require.Equal(t, oldApproved.ID, got[2].ID)
}
