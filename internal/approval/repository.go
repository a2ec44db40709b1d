package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filter narrows List queries. Zero values are ignored.
type Filter struct {
	Status     Status
	SiteID     uuid.UUID
	EngineerID string
}

// RepositoryPort abstracts persistence for the approval service.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (ScopingApproval, error)
	List(ctx context.Context, f Filter) ([]ScopingApproval, error)
	ListActions(ctx context.Context, approvalID uuid.UUID) ([]Action, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, rec ScopingApproval) error
	ApplyDecision(ctx context.Context, id uuid.UUID, d Decision) error
	RecordAction(ctx context.Context, a Action) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const approvalColumns = `id, site_id, site_name, deployment_engineer_id, deployment_engineer_name,
status, submitted_at, reviewed_by, reviewed_at, review_comment, rejection_reason,
scoping_data, cost_breakdown, version, previous_version_id, created_at, updated_at`

func scanApproval(row pgx.Row) (ScopingApproval, error) {
	var (
		rec          ScopingApproval
		scopingRaw   []byte
		breakdownRaw []byte
	)
	err := row.Scan(&rec.ID, &rec.SiteID, &rec.SiteName, &rec.EngineerID, &rec.EngineerName,
		&rec.Status, &rec.SubmittedAt, &rec.ReviewedBy, &rec.ReviewedAt, &rec.ReviewComment, &rec.RejectionReason,
		&scopingRaw, &breakdownRaw, &rec.Version, &rec.PreviousVersionID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return ScopingApproval{}, err
	}
	if len(scopingRaw) > 0 {
		if err := json.Unmarshal(scopingRaw, &rec.Scoping); err != nil {
			return ScopingApproval{}, fmt.Errorf("approval: decode scoping_data: %w", err)
		}
	}
	if len(breakdownRaw) > 0 {
		if err := json.Unmarshal(breakdownRaw, &rec.Costs); err != nil {
			return ScopingApproval{}, fmt.Errorf("approval: decode cost_breakdown: %w", err)
		}
	}
	return rec, nil
}

// Get fetches a single approval record by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (ScopingApproval, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM scoping_approvals WHERE id = $1`, id)
	rec, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScopingApproval{}, ErrNotFound
	}
	return rec, err
}

// List returns approvals matching the filter, newest submissions first.
func (r *Repository) List(ctx context.Context, f Filter) ([]ScopingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM scoping_approvals WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.SiteID != uuid.Nil {
		args = append(args, f.SiteID)
		query += fmt.Sprintf(" AND site_id = $%d", len(args))
	}
	if f.EngineerID != "" {
		args = append(args, f.EngineerID)
		query += fmt.Sprintf(" AND deployment_engineer_id = $%d", len(args))
	}
	query += ` ORDER BY submitted_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []ScopingApproval
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ListActions returns the action log for an approval, oldest first.
func (r *Repository) ListActions(ctx context.Context, approvalID uuid.UUID) ([]Action, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, approval_id, action, performed_by, performed_by_role, performed_at, comment, metadata
FROM approval_actions WHERE approval_id = $1 ORDER BY performed_at`, approvalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []Action
	for rows.Next() {
		var (
			a       Action
			metaRaw []byte
		)
		if err := rows.Scan(&a.ID, &a.ApprovalID, &a.Action, &a.PerformedBy, &a.PerformedByRole, &a.PerformedAt, &a.Comment, &metaRaw); err != nil {
			return nil, err
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &a.Metadata); err != nil {
				return nil, fmt.Errorf("approval: decode action metadata: %w", err)
			}
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Insert persists a new approval version. A partial unique index keeps at
// most one pending submission per site.
func (t *txRepo) Insert(ctx context.Context, rec ScopingApproval) error {
	scopingRaw, err := json.Marshal(rec.Scoping)
	if err != nil {
		return fmt.Errorf("approval: encode scoping_data: %w", err)
	}
	breakdownRaw, err := json.Marshal(rec.Costs)
	if err != nil {
		return fmt.Errorf("approval: encode cost_breakdown: %w", err)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO scoping_approvals
(id, site_id, site_name, deployment_engineer_id, deployment_engineer_name, status, submitted_at,
scoping_data, cost_breakdown, version, previous_version_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.SiteID, rec.SiteName, rec.EngineerID, rec.EngineerName, rec.Status, rec.SubmittedAt,
		scopingRaw, breakdownRaw, rec.Version, rec.PreviousVersionID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_scoping_approvals_pending_site" {
			return ErrPendingExists
		}
		return err
	}
	return nil
}

// ApplyDecision writes all reviewer fields in one update, guarded on the
// record still being pending. A zero row count against an existing record
// means another reviewer resolved it first.
func (t *txRepo) ApplyDecision(ctx context.Context, id uuid.UUID, d Decision) error {
	var reason *string
	if d.RejectionReason != "" {
		reason = &d.RejectionReason
	}
	tag, err := t.tx.Exec(ctx, `UPDATE scoping_approvals
SET status = $2, reviewed_by = $3, reviewed_at = $4, review_comment = $5, rejection_reason = $6, updated_at = $7
WHERE id = $1 AND status = 'pending'`,
		id, d.Status, d.ReviewedBy, d.ReviewedAt, d.ReviewComment, reason, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scoping_approvals WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrTerminalState
	}
	return nil
}

// RecordAction appends one entry to the approval action log.
func (t *txRepo) RecordAction(ctx context.Context, a Action) error {
	metaRaw, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("approval: encode action metadata: %w", err)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO approval_actions (id, approval_id, action, performed_by, performed_by_role, performed_at, comment, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.ApprovalID, a.Action, a.PerformedBy, a.PerformedByRole, a.PerformedAt, a.Comment, metaRaw)
	return err
}
