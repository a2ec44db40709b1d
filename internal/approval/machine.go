package approval

import (
	"sort"
	"strings"
	"time"

	"github.com/smartq/launchpad/internal/rbac"
)

// Decision is the atomic outcome of a review transition. All reviewer
// fields are persisted together in a single update.
type Decision struct {
	Status          Status
	ReviewedBy      string
	ReviewedAt      time.Time
	ReviewComment   string
	RejectionReason string
}

// reviewGuard enforces the shared preconditions of every review
// transition. Check order is observable through the returned error:
// terminal state first, then the comment, then the actor's role.
func reviewGuard(rec ScopingApproval, actor rbac.Actor, comment string) error {
	if rec.Status.Terminal() {
		return ErrTerminalState
	}
	if rec.Status != StatusPending {
		return ErrInvalidState
	}
	if strings.TrimSpace(comment) == "" {
		return ErrEmptyComment
	}
	if rbac.GroupLevel(actor.Role, "/approvals-procurement") != rbac.AccessFull {
		return ErrUnauthorizedActor
	}
	return nil
}

// Approve produces the pending -> approved decision.
func Approve(rec ScopingApproval, actor rbac.Actor, comment string, now time.Time) (Decision, error) {
	if err := reviewGuard(rec, actor, comment); err != nil {
		return Decision{}, err
	}
	return Decision{
		Status:        StatusApproved,
		ReviewedBy:    actor.UserID,
		ReviewedAt:    now,
		ReviewComment: strings.TrimSpace(comment),
	}, nil
}

// Reject produces the pending -> rejected decision. When no distinct
// reason is supplied the review comment doubles as the rejection reason.
func Reject(rec ScopingApproval, actor rbac.Actor, comment, reason string, now time.Time) (Decision, error) {
	if err := reviewGuard(rec, actor, comment); err != nil {
		return Decision{}, err
	}
	comment = strings.TrimSpace(comment)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = comment
	}
	return Decision{
		Status:          StatusRejected,
		ReviewedBy:      actor.UserID,
		ReviewedAt:      now,
		ReviewComment:   comment,
		RejectionReason: reason,
	}, nil
}

// RequestChanges produces the pending -> changes_requested decision.
// The record stays live: the submitting engineer can resubmit against it.
func RequestChanges(rec ScopingApproval, actor rbac.Actor, comment string, now time.Time) (Decision, error) {
	if err := reviewGuard(rec, actor, comment); err != nil {
		return Decision{}, err
	}
	return Decision{
		Status:        StatusChangesRequested,
		ReviewedBy:    actor.UserID,
		ReviewedAt:    now,
		ReviewComment: strings.TrimSpace(comment),
	}, nil
}

// Resubmit derives the successor record for a changes_requested approval.
// Only the original submitting engineer may resubmit, and only while the
// predecessor sits in changes_requested. The returned record carries no ID;
// the caller assigns one before persisting.
func Resubmit(prev ScopingApproval, actor rbac.Actor, data ScopingData, costs CostBreakdown, now time.Time) (ScopingApproval, error) {
	if prev.Status.Terminal() {
		return ScopingApproval{}, ErrTerminalState
	}
	if prev.Status != StatusChangesRequested {
		return ScopingApproval{}, ErrInvalidState
	}
	if actor.UserID != prev.EngineerID {
		return ScopingApproval{}, ErrUnauthorizedActor
	}
	prevID := prev.ID
	return ScopingApproval{
		SiteID:            prev.SiteID,
		SiteName:          prev.SiteName,
		EngineerID:        prev.EngineerID,
		EngineerName:      prev.EngineerName,
		Status:            StatusPending,
		SubmittedAt:       now,
		Scoping:           data,
		Costs:             costs,
		Version:           prev.Version + 1,
		PreviousVersionID: &prevID,
	}, nil
}

// Overdue reports whether a pending record has waited longer than the
// configured response threshold. Non-pending records are never overdue.
func Overdue(rec ScopingApproval, now time.Time, threshold time.Duration) bool {
	if rec.Status != StatusPending {
		return false
	}
	return now.Sub(rec.SubmittedAt) > threshold
}

// History filters to resolved records and orders them by review time,
// most recent first.
func History(records []ScopingApproval) []ScopingApproval {
	out := make([]ScopingApproval, 0, len(records))
	for _, rec := range records {
		if rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].ReviewedAt, out[j].ReviewedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out
}
