package assets

import (
	"context"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
	"github.com/smartq/launchpad/internal/sites"
)

// SitePort supplies the sites an actor can see, for assigned-level
// asset visibility. Implemented by the sites service.
type SitePort interface {
	List(ctx context.Context, actor rbac.Actor, f sites.Filter) ([]sites.Site, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service coordinates asset inventory and license tracking.
type Service struct {
	repo   RepositoryPort
	sites  SitePort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewService constructs the assets service.
func NewService(repo RepositoryPort, sitePort SitePort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		sites:  sitePort,
		audit:  audit,
		logger: logger,
		now:    time.Now,
		newID:  uuid.New,
	}
}

// CreateAssetInput carries a new inventory registration.
type CreateAssetInput struct {
	Type         string
	Model        string
	SerialNumber string
}

// CreateAsset registers a new asset as available stock.
func (s *Service) CreateAsset(ctx context.Context, actor rbac.Actor, in CreateAssetInput) (Asset, error) {
	now := s.now()
	a := Asset{
		ID:           s.newID(),
		Type:         strings.TrimSpace(in.Type),
		Model:        strings.TrimSpace(in.Model),
		SerialNumber: strings.ToUpper(strings.TrimSpace(in.SerialNumber)),
		Status:       AssetAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertAsset(ctx, a); err != nil {
		return Asset{}, err
	}
	s.recordAudit(ctx, actor, "asset.create", a.ID)
	return a, nil
}

// ListAssets returns assets the actor may see. Assigned-level actors only
// see assets deployed at their sites.
func (s *Service) ListAssets(ctx context.Context, actor rbac.Actor, f AssetFilter) ([]Asset, error) {
	if rbac.GroupLevel(actor.Role, "/assets") != rbac.AccessFull {
		visible, err := s.sites.List(ctx, actor, sites.Filter{})
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(visible))
		for _, site := range visible {
			ids = append(ids, site.ID)
		}
		f.SiteIDs = ids
	}
	return s.repo.ListAssets(ctx, f)
}

// DeployAsset assigns an available asset to a site.
func (s *Service) DeployAsset(ctx context.Context, actor rbac.Actor, assetID, siteID uuid.UUID) (Asset, error) {
	a, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return Asset{}, err
	}
	if a.Status != AssetAvailable {
		return Asset{}, ErrNotDeployable
	}
	a.SiteID = &siteID
	a.Status = AssetDeployed
	a.UpdatedAt = s.now()
	if err := s.repo.UpdateAsset(ctx, a); err != nil {
		return Asset{}, err
	}
	s.recordAudit(ctx, actor, "asset.deploy", a.ID)
	return a, nil
}

// UpdateAssetStatus moves an asset between lifecycle states. Retiring or
// servicing an asset releases its site linkage.
func (s *Service) UpdateAssetStatus(ctx context.Context, actor rbac.Actor, assetID uuid.UUID, status AssetStatus) (Asset, error) {
	a, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return Asset{}, err
	}
	a.Status = status
	if status == AssetAvailable || status == AssetRetired {
		a.SiteID = nil
	}
	a.UpdatedAt = s.now()
	if err := s.repo.UpdateAsset(ctx, a); err != nil {
		return Asset{}, err
	}
	s.recordAudit(ctx, actor, "asset.status."+string(status), a.ID)
	return a, nil
}

// CreateLicenseInput carries a new license registration.
type CreateLicenseInput struct {
	AssetID    *uuid.UUID
	LicenseKey string
	Type       LicenseType
	Vendor     string
	Cost       float64
	StartDate  time.Time
	ExpiryDate *time.Time
}

// CreateLicense registers a license.
func (s *Service) CreateLicense(ctx context.Context, actor rbac.Actor, in CreateLicenseInput) (License, error) {
	now := s.now()
	l := License{
		ID:         s.newID(),
		AssetID:    in.AssetID,
		LicenseKey: strings.TrimSpace(in.LicenseKey),
		Type:       in.Type,
		Status:     LicenseActive,
		Vendor:     strings.TrimSpace(in.Vendor),
		Cost:       in.Cost,
		StartDate:  in.StartDate,
		ExpiryDate: in.ExpiryDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertLicense(ctx, l); err != nil {
		return License{}, err
	}
	s.recordAudit(ctx, actor, "license.create", l.ID)
	return l, nil
}

// ListLicenses returns all licenses.
func (s *Service) ListLicenses(ctx context.Context) ([]License, error) {
	return s.repo.ListLicenses(ctx)
}

// ExpiringLicenses returns live licenses whose expiry falls within the
// window, soonest first. Feeds the dashboard alert panel.
func (s *Service) ExpiringLicenses(ctx context.Context, window time.Duration) ([]License, error) {
	return s.repo.ListLicensesExpiringBefore(ctx, s.now().Add(window))
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Actor, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "asset", EntityID: id.String()}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
