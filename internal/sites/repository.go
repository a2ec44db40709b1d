package sites

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filter narrows site listings. AssignedTo matches sites where the user
// is the ops manager, the engineer or the creator.
type Filter struct {
	Stage      Stage
	AssignedTo string
}

// RepositoryPort abstracts persistence for the sites service.
type RepositoryPort interface {
	Insert(ctx context.Context, site Site) error
	Get(ctx context.Context, id uuid.UUID) (Site, error)
	List(ctx context.Context, f Filter) ([]Site, error)
	Update(ctx context.Context, site Site) error
	UpdateStage(ctx context.Context, id uuid.UUID, from, to Stage) error
	InsertStudy(ctx context.Context, study Study) error
	GetStudy(ctx context.Context, siteID uuid.UUID) (Study, error)
	UpdateStudy(ctx context.Context, study Study) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const siteColumns = `id, name, organization, unit_code, sector, location, postcode, region, country,
go_live_date, priority, stage, assigned_ops_manager_id, assigned_deployment_engineer_id, notes,
created_by, created_at, updated_at`

func scanSite(row pgx.Row) (Site, error) {
	var s Site
	err := row.Scan(&s.ID, &s.Name, &s.Organization, &s.UnitCode, &s.Sector, &s.Location, &s.Postcode,
		&s.Region, &s.Country, &s.GoLiveDate, &s.Priority, &s.Stage, &s.OpsManagerID, &s.EngineerID,
		&s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Insert persists a new site.
func (r *Repository) Insert(ctx context.Context, site Site) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sites
(id, name, organization, unit_code, sector, location, postcode, region, country, go_live_date,
priority, stage, assigned_ops_manager_id, assigned_deployment_engineer_id, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		site.ID, site.Name, site.Organization, site.UnitCode, site.Sector, site.Location, site.Postcode,
		site.Region, site.Country, site.GoLiveDate, site.Priority, site.Stage, site.OpsManagerID,
		site.EngineerID, site.Notes, site.CreatedBy, site.CreatedAt, site.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_sites_unit_code" {
			return ErrDuplicateUnitCode
		}
		return err
	}
	return nil
}

// Get fetches one site by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Site, error) {
	site, err := scanSite(r.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Site{}, ErrNotFound
	}
	return site, err
}

// List returns sites matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE 1=1`
	args := []any{}
	if f.Stage != "" {
		args = append(args, f.Stage)
		query += fmt.Sprintf(" AND stage = $%d", len(args))
	}
	if f.AssignedTo != "" {
		args = append(args, f.AssignedTo)
		n := len(args)
		query += fmt.Sprintf(" AND (assigned_ops_manager_id = $%d OR assigned_deployment_engineer_id = $%d OR created_by = $%d)", n, n, n)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update rewrites the mutable site fields.
func (r *Repository) Update(ctx context.Context, site Site) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sites
SET name = $2, organization = $3, sector = $4, location = $5, postcode = $6, region = $7, country = $8,
go_live_date = $9, priority = $10, assigned_ops_manager_id = $11, assigned_deployment_engineer_id = $12,
notes = $13, updated_at = $14
WHERE id = $1`,
		site.ID, site.Name, site.Organization, site.Sector, site.Location, site.Postcode, site.Region,
		site.Country, site.GoLiveDate, site.Priority, site.OpsManagerID, site.EngineerID, site.Notes, site.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStage moves a site between workflow stages, guarded on the
// current stage so concurrent updates cannot skip steps.
func (r *Repository) UpdateStage(ctx context.Context, id uuid.UUID, from, to Stage) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sites SET stage = $3, updated_at = NOW() WHERE id = $1 AND stage = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidStage
	}
	return nil
}

// InsertStudy persists a new site study.
func (r *Repository) InsertStudy(ctx context.Context, study Study) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO site_studies (id, site_id, findings, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		study.ID, study.SiteID, study.Findings, study.Status, study.CreatedBy, study.CreatedAt, study.UpdatedAt)
	return err
}

// GetStudy fetches the latest study for a site.
func (r *Repository) GetStudy(ctx context.Context, siteID uuid.UUID) (Study, error) {
	var st Study
	err := r.pool.QueryRow(ctx, `SELECT id, site_id, findings, status, created_by, created_at, updated_at
FROM site_studies WHERE site_id = $1 ORDER BY created_at DESC LIMIT 1`, siteID).
		Scan(&st.ID, &st.SiteID, &st.Findings, &st.Status, &st.CreatedBy, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Study{}, ErrNotFound
	}
	return st, err
}

// UpdateStudy rewrites findings and status.
func (r *Repository) UpdateStudy(ctx context.Context, study Study) error {
	tag, err := r.pool.Exec(ctx, `UPDATE site_studies SET findings = $2, status = $3, updated_at = $4 WHERE id = $1`,
		study.ID, study.Findings, study.Status, study.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
