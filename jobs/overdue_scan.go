package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartq/launchpad/internal/observability"
	"github.com/smartq/launchpad/internal/shared"
)

// OverdueApproval is one pending submission past the response threshold.
type OverdueApproval struct {
	ID           uuid.UUID
	SiteName     string
	EngineerID   string
	EngineerName string
	SubmittedAt  time.Time
}

// OverdueStore lists and claims overdue submissions. MarkNotified returns
// false when another worker claimed the row first, which keeps the
// notification exactly-once under concurrent scans.
type OverdueStore interface {
	ListUnnotified(ctx context.Context, cutoff time.Time) ([]OverdueApproval, error)
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// SettingsPort supplies the configured review response threshold.
type SettingsPort interface {
	ApprovalResponseTime(ctx context.Context) (time.Duration, error)
}

// Mailer enqueues outbound notification mail.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// ApprovalOverdueScanJob flags pending scoping approvals older than the
// configured response threshold and notifies the reviewer inbox once.
type ApprovalOverdueScanJob struct {
	Store    OverdueStore
	Settings SettingsPort
	Mailer   Mailer
	Audit    AuditPort
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	OpsInbox string
	clock    func() time.Time
}

// NewApprovalOverdueScanJob initialises the scan handler.
func NewApprovalOverdueScanJob(store OverdueStore, settings SettingsPort, mailer Mailer, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics, opsInbox string) *ApprovalOverdueScanJob {
	return &ApprovalOverdueScanJob{
		Store:    store,
		Settings: settings,
		Mailer:   mailer,
		Audit:    audit,
		Logger:   logger,
		Metrics:  metrics,
		OpsInbox: opsInbox,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one scan pass.
func (j *ApprovalOverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	threshold, err := j.threshold(ctx, payload)
	if err != nil {
		j.Metrics.JobCompleted(TaskApprovalOverdueScan, err)
		return err
	}

	now := j.now()
	logger := j.logger().With(slog.Duration("threshold", threshold))
	logger.Info("starting overdue scan")

	scanned, notified, err := j.scan(ctx, now, threshold)
	j.Metrics.JobCompleted(TaskApprovalOverdueScan, err)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	logger.Info("completed overdue scan",
		slog.Int("scanned", scanned),
		slog.Int("notified", notified),
		slog.Duration("duration", time.Since(now)),
	)
	return nil
}

func (j *ApprovalOverdueScanJob) scan(ctx context.Context, now time.Time, threshold time.Duration) (int, int, error) {
	overdue, err := j.Store.ListUnnotified(ctx, now.Add(-threshold))
	if err != nil {
		return 0, 0, err
	}

	notified := 0
	for _, rec := range overdue {
		claimed, err := j.Store.MarkNotified(ctx, rec.ID, now)
		if err != nil {
			return len(overdue), notified, err
		}
		if !claimed {
			continue
		}
		j.notify(ctx, rec, now)
		notified++
	}
	return len(overdue), notified, nil
}

func (j *ApprovalOverdueScanJob) notify(ctx context.Context, rec OverdueApproval, now time.Time) {
	waiting := now.Sub(rec.SubmittedAt).Round(time.Hour)
	if j.Mailer != nil {
		_, err := j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      j.OpsInbox,
			Subject: fmt.Sprintf("Scoping approval overdue: %s", rec.SiteName),
			Body: fmt.Sprintf("Submission by %s for %s has been waiting %s for review.",
				rec.EngineerName, rec.SiteName, waiting),
		})
		if err != nil {
			j.logger().Warn("enqueue overdue mail failed",
				slog.String("approval_id", rec.ID.String()), slog.Any("error", err))
		}
	}
	if j.Audit != nil {
		entry := shared.AuditLog{
			Action:   "approval.overdue",
			Entity:   "scoping_approval",
			EntityID: rec.ID.String(),
			ActorID:  "system",
			Meta: map[string]any{
				"site_name":    rec.SiteName,
				"engineer_id":  rec.EngineerID,
				"submitted_at": rec.SubmittedAt,
			},
			At: now,
		}
		if err := j.Audit.Record(ctx, entry); err != nil {
			j.logger().Warn("audit record failed",
				slog.String("approval_id", rec.ID.String()), slog.Any("error", err))
		}
	}
}

func (j *ApprovalOverdueScanJob) threshold(ctx context.Context, payload OverdueScanPayload) (time.Duration, error) {
	if payload.Threshold != "" {
		d, err := time.ParseDuration(payload.Threshold)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("overdue scan: bad threshold %q", payload.Threshold)
		}
		return d, nil
	}
	if j.Settings == nil {
		return 0, errors.New("overdue scan: settings not configured")
	}
	return j.Settings.ApprovalResponseTime(ctx)
}

func (j *ApprovalOverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskApprovalOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskApprovalOverdueScan))
}

func (j *ApprovalOverdueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// PGOverdueStore is the postgres OverdueStore used in production.
type PGOverdueStore struct {
	Pool *pgxpool.Pool
}

// ListUnnotified returns pending approvals submitted before the cutoff
// that have not been flagged yet.
func (s *PGOverdueStore) ListUnnotified(ctx context.Context, cutoff time.Time) ([]OverdueApproval, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, site_name, deployment_engineer_id, deployment_engineer_name, submitted_at
FROM scoping_approvals
WHERE status = 'pending' AND submitted_at < $1 AND notified_overdue_at IS NULL
ORDER BY submitted_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overdue []OverdueApproval
	for rows.Next() {
		var rec OverdueApproval
		if err := rows.Scan(&rec.ID, &rec.SiteName, &rec.EngineerID, &rec.EngineerName, &rec.SubmittedAt); err != nil {
			return nil, err
		}
		overdue = append(overdue, rec)
	}
	return overdue, rows.Err()
}

// MarkNotified claims the row. The IS NULL guard makes the claim a
// compare-and-set, so only one scanner wins.
func (s *PGOverdueStore) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE scoping_approvals
SET notified_overdue_at = $2, updated_at = $2
WHERE id = $1 AND notified_overdue_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
