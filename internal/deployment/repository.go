package deployment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts persistence for the deployment service.
type RepositoryPort interface {
	Insert(ctx context.Context, d Deployment, items []ChecklistItem) error
	Get(ctx context.Context, id uuid.UUID) (Deployment, error)
	GetBySite(ctx context.Context, siteID uuid.UUID) (Deployment, error)
	Update(ctx context.Context, d Deployment) error
	ListItems(ctx context.Context, deploymentID uuid.UUID) ([]ChecklistItem, error)
	UpdateItem(ctx context.Context, item ChecklistItem) error
	CountOpenItems(ctx context.Context, deploymentID uuid.UUID) (int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const deploymentColumns = `id, site_id, scheduled_for, status, engineer_id, completed_at, went_live_at, created_at, updated_at`

func scanDeployment(row pgx.Row) (Deployment, error) {
	var d Deployment
	err := row.Scan(&d.ID, &d.SiteID, &d.ScheduledFor, &d.Status, &d.EngineerID,
		&d.CompletedAt, &d.WentLiveAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// Insert persists a deployment and its initial checklist in one transaction.
func (r *Repository) Insert(ctx context.Context, d Deployment, items []ChecklistItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO deployments (`+deploymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.SiteID, d.ScheduledFor, d.Status, d.EngineerID, d.CompletedAt, d.WentLiveAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	for _, item := range items {
		_, err = tx.Exec(ctx, `INSERT INTO deployment_checklist_items (id, deployment_id, title, status, note, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.DeploymentID, item.Title, item.Status, item.Note, item.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get fetches one deployment by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Deployment, error) {
	d, err := scanDeployment(r.pool.QueryRow(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Deployment{}, ErrNotFound
	}
	return d, err
}

// GetBySite fetches the newest deployment for a site.
func (r *Repository) GetBySite(ctx context.Context, siteID uuid.UUID) (Deployment, error) {
	d, err := scanDeployment(r.pool.QueryRow(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE site_id = $1 ORDER BY created_at DESC LIMIT 1`, siteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Deployment{}, ErrNotFound
	}
	return d, err
}

// Update rewrites the deployment status fields.
func (r *Repository) Update(ctx context.Context, d Deployment) error {
	tag, err := r.pool.Exec(ctx, `UPDATE deployments
SET scheduled_for = $2, status = $3, completed_at = $4, went_live_at = $5, updated_at = $6
WHERE id = $1`,
		d.ID, d.ScheduledFor, d.Status, d.CompletedAt, d.WentLiveAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns the checklist for a deployment in insertion order.
func (r *Repository) ListItems(ctx context.Context, deploymentID uuid.UUID) ([]ChecklistItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, deployment_id, title, status, note, updated_at
FROM deployment_checklist_items WHERE deployment_id = $1 ORDER BY id`, deploymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ChecklistItem
	for rows.Next() {
		var item ChecklistItem
		if err := rows.Scan(&item.ID, &item.DeploymentID, &item.Title, &item.Status, &item.Note, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateItem rewrites one checklist item's status and note.
func (r *Repository) UpdateItem(ctx context.Context, item ChecklistItem) error {
	tag, err := r.pool.Exec(ctx, `UPDATE deployment_checklist_items SET status = $2, note = $3, updated_at = $4 WHERE id = $1`,
		item.ID, item.Status, item.Note, item.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOpenItems counts checklist items that are not yet completed.
func (r *Repository) CountOpenItems(ctx context.Context, deploymentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deployment_checklist_items
WHERE deployment_id = $1 AND status NOT IN ('completed', 'failed')`, deploymentID).Scan(&n)
	return n, err
}
