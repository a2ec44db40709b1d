package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartq/launchpad/internal/approval"
	"github.com/smartq/launchpad/internal/assets"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/sites"
)

// DefaultLicenseWindow bounds the expiring-license alert on the summary.
const DefaultLicenseWindow = 30 * 24 * time.Hour

// ApprovalPort supplies the pending approval queue, already role-scoped.
type ApprovalPort interface {
	Pending(ctx context.Context, actor rbac.Actor) ([]approval.PendingApproval, error)
}

// SitePort supplies the site listing, already role-scoped.
type SitePort interface {
	List(ctx context.Context, actor rbac.Actor, f sites.Filter) ([]sites.Site, error)
}

// LicensePort supplies licenses expiring within a window.
type LicensePort interface {
	ExpiringLicenses(ctx context.Context, window time.Duration) ([]assets.License, error)
}

// Service aggregates workload counters for the landing dashboard.
type Service struct {
	approvals ApprovalPort
	sites     SitePort
	licenses  LicensePort
}

// NewService constructs the dashboard service.
func NewService(approvals ApprovalPort, sitePort SitePort, licenses LicensePort) *Service {
	return &Service{approvals: approvals, sites: sitePort, licenses: licenses}
}

// Summary is the aggregate payload behind GET /dashboard/summary.
type Summary struct {
	PendingApprovals int                        `json:"pending_approvals"`
	OverdueApprovals int                        `json:"overdue_approvals"`
	TotalSites       int                        `json:"total_sites"`
	SitesByStage     map[sites.Stage]int        `json:"sites_by_stage"`
	ExpiringLicenses []assets.License           `json:"expiring_licenses"`
	OverdueQueue     []approval.PendingApproval `json:"overdue_queue"`
}

// Summarize fans the source queries out concurrently. Each source is
// scoped by the caller's role, so two users can see different numbers
// for the same underlying data.
func (s *Service) Summarize(ctx context.Context, actor rbac.Actor) (Summary, error) {
	var (
		pending  []approval.PendingApproval
		siteList []sites.Site
		expiring []assets.License
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pending, err = s.approvals.Pending(ctx, actor)
		return err
	})
	g.Go(func() error {
		var err error
		siteList, err = s.sites.List(ctx, actor, sites.Filter{})
		return err
	})
	g.Go(func() error {
		var err error
		expiring, err = s.licenses.ExpiringLicenses(ctx, DefaultLicenseWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		PendingApprovals: len(pending),
		TotalSites:       len(siteList),
		SitesByStage:     make(map[sites.Stage]int),
		ExpiringLicenses: expiring,
	}
	for _, p := range pending {
		if p.Overdue {
			summary.OverdueApprovals++
			summary.OverdueQueue = append(summary.OverdueQueue, p)
		}
	}
	for _, site := range siteList {
		summary.SitesByStage[site.Stage]++
	}
	return summary, nil
}
