package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssetFilter narrows asset listings. SiteIDs, when set, restricts to
// assets deployed at those sites (used for assigned-level visibility).
type AssetFilter struct {
	Status  AssetStatus
	SiteID  uuid.UUID
	SiteIDs []uuid.UUID
}

// RepositoryPort abstracts persistence for the assets service.
type RepositoryPort interface {
	InsertAsset(ctx context.Context, a Asset) error
	GetAsset(ctx context.Context, id uuid.UUID) (Asset, error)
	ListAssets(ctx context.Context, f AssetFilter) ([]Asset, error)
	UpdateAsset(ctx context.Context, a Asset) error
	InsertLicense(ctx context.Context, l License) error
	ListLicenses(ctx context.Context) ([]License, error)
	UpdateLicense(ctx context.Context, l License) error
	ListLicensesExpiringBefore(ctx context.Context, cutoff time.Time) ([]License, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assetColumns = `id, type, model, serial_number, site_id, status, created_at, updated_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Type, &a.Model, &a.SerialNumber, &a.SiteID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// InsertAsset persists a new asset.
func (r *Repository) InsertAsset(ctx context.Context, a Asset) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO assets (`+assetColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Type, a.Model, a.SerialNumber, a.SiteID, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_assets_serial_number" {
			return ErrDuplicateSerial
		}
		return err
	}
	return nil
}

// GetAsset fetches one asset by id.
func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	return a, err
}

// ListAssets returns assets matching the filter.
func (r *Repository) ListAssets(ctx context.Context, f AssetFilter) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.SiteID != uuid.Nil {
		args = append(args, f.SiteID)
		query += fmt.Sprintf(" AND site_id = $%d", len(args))
	}
	if f.SiteIDs != nil {
		args = append(args, f.SiteIDs)
		query += fmt.Sprintf(" AND site_id = ANY($%d)", len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAsset rewrites the mutable asset fields.
func (r *Repository) UpdateAsset(ctx context.Context, a Asset) error {
	tag, err := r.pool.Exec(ctx, `UPDATE assets SET type = $2, model = $3, site_id = $4, status = $5, updated_at = $6 WHERE id = $1`,
		a.ID, a.Type, a.Model, a.SiteID, a.Status, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const licenseColumns = `id, asset_id, license_key, type, status, vendor, cost, start_date, expiry_date, created_at, updated_at`

func scanLicense(row pgx.Row) (License, error) {
	var l License
	err := row.Scan(&l.ID, &l.AssetID, &l.LicenseKey, &l.Type, &l.Status, &l.Vendor, &l.Cost,
		&l.StartDate, &l.ExpiryDate, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// InsertLicense persists a new license.
func (r *Repository) InsertLicense(ctx context.Context, l License) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO licenses (`+licenseColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.AssetID, l.LicenseKey, l.Type, l.Status, l.Vendor, l.Cost, l.StartDate, l.ExpiryDate, l.CreatedAt, l.UpdatedAt)
	return err
}

// ListLicenses returns all licenses, newest first.
func (r *Repository) ListLicenses(ctx context.Context) ([]License, error) {
	return r.queryLicenses(ctx, `SELECT `+licenseColumns+` FROM licenses ORDER BY created_at DESC`)
}

// UpdateLicense rewrites the mutable license fields.
func (r *Repository) UpdateLicense(ctx context.Context, l License) error {
	tag, err := r.pool.Exec(ctx, `UPDATE licenses SET asset_id = $2, status = $3, expiry_date = $4, updated_at = $5 WHERE id = $1`,
		l.ID, l.AssetID, l.Status, l.ExpiryDate, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLicensesExpiringBefore returns active licenses expiring before the
// cutoff, soonest first.
func (r *Repository) ListLicensesExpiringBefore(ctx context.Context, cutoff time.Time) ([]License, error) {
	return r.queryLicenses(ctx, `SELECT `+licenseColumns+` FROM licenses
WHERE status IN ('active', 'pending_renewal') AND expiry_date IS NOT NULL AND expiry_date < $1
ORDER BY expiry_date`, cutoff)
}

func (r *Repository) queryLicenses(ctx context.Context, query string, args ...any) ([]License, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
