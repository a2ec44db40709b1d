package jobs

import (
	"context"
	"fmt"

	"github.com/smartq/launchpad/internal/approval"
)

// ApprovalNotifier bridges approval workflow events onto the mail queue.
// Delivery is best effort; the workflow transition has already committed
// by the time these run.
type ApprovalNotifier struct {
	Mailer   Mailer
	OpsInbox string
}

// ApprovalSubmitted alerts the reviewer inbox about a new submission.
func (n *ApprovalNotifier) ApprovalSubmitted(ctx context.Context, rec approval.ScopingApproval) error {
	_, err := n.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      n.OpsInbox,
		Subject: fmt.Sprintf("Scoping submitted for review: %s", rec.SiteName),
		Body: fmt.Sprintf("%s submitted scoping version %d for %s.",
			rec.EngineerName, rec.Version, rec.SiteName),
	})
	return err
}

// ApprovalReviewed reports a review outcome back to the ops inbox.
func (n *ApprovalNotifier) ApprovalReviewed(ctx context.Context, rec approval.ScopingApproval, d approval.Decision) error {
	_, err := n.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      n.OpsInbox,
		Subject: fmt.Sprintf("Scoping %s: %s", d.Status, rec.SiteName),
		Body: fmt.Sprintf("Version %d for %s was marked %s by %s. Comment: %s",
			rec.Version, rec.SiteName, d.Status, d.ReviewedBy, d.ReviewComment),
	})
	return err
}
