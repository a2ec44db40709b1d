package deployment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status tracks a deployment engagement for a site.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ItemStatus tracks a single checklist item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// Deployment is the on-site installation engagement that follows an
// approved scoping.
type Deployment struct {
	ID           uuid.UUID  `json:"id"`
	SiteID       uuid.UUID  `json:"site_id"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       Status     `json:"status"`
	EngineerID   string     `json:"engineer_id"`
	CompletedAt  *time.Time `json:"completed_at"`
	WentLiveAt   *time.Time `json:"went_live_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ChecklistItem is one task within a deployment.
type ChecklistItem struct {
	ID           uuid.UUID  `json:"id"`
	DeploymentID uuid.UUID  `json:"deployment_id"`
	Title        string     `json:"title"`
	Status       ItemStatus `json:"status"`
	Note         string     `json:"note"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

var (
	// ErrNotFound indicates the deployment or checklist item is missing.
	ErrNotFound = errors.New("deployment: not found")
	// ErrInvalidState occurs when an operation does not fit the current status.
	ErrInvalidState = errors.New("deployment: invalid state transition")
	// ErrChecklistIncomplete blocks completion while items remain open.
	ErrChecklistIncomplete = errors.New("deployment: checklist items still open")
	// ErrAlreadyScheduled occurs when the site already has an active deployment.
	ErrAlreadyScheduled = errors.New("deployment: site already has an active deployment")
)
