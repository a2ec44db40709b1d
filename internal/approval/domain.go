package approval

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Scoping approval lifecycle statuses.
type Status string

const (
	// StatusPending awaits a reviewer decision.
	StatusPending Status = "pending"
	// StatusApproved is terminal for a given version.
	StatusApproved Status = "approved"
	// StatusRejected is terminal for a given version.
	StatusRejected Status = "rejected"
	// StatusChangesRequested can only be exited by a resubmission, which
	// creates a new version rather than mutating this record.
	StatusChangesRequested Status = "changes_requested"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ActionType enumerates entries in the approval action log.
type ActionType string

const (
	ActionSubmit         ActionType = "submit"
	ActionApprove        ActionType = "approve"
	ActionReject         ActionType = "reject"
	ActionRequestChanges ActionType = "request_changes"
	ActionResubmit       ActionType = "resubmit"
)

// LineItem is a selected software or hardware catalogue entry.
type LineItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// ScopingData captures the engineer's selections for a site.
type ScopingData struct {
	SelectedSoftware []LineItem `json:"selected_software"`
	SelectedHardware []LineItem `json:"selected_hardware"`
}

// CostBreakdown is the derived monetary summary of a scoping submission.
type CostBreakdown struct {
	HardwareCost        float64 `json:"hardware_cost"`
	SoftwareSetupCost   float64 `json:"software_setup_cost"`
	InstallationCost    float64 `json:"installation_cost"`
	ContingencyCost     float64 `json:"contingency_cost"`
	TotalCapex          float64 `json:"total_capex"`
	MonthlySoftwareFees float64 `json:"monthly_software_fees"`
	MaintenanceCost     float64 `json:"maintenance_cost"`
	TotalMonthlyOpex    float64 `json:"total_monthly_opex"`
	TotalInvestment     float64 `json:"total_investment"`
}

// ScopingApproval is the central workflow record. The backend store owns
// the canonical copy; everything here is a transient snapshot.
type ScopingApproval struct {
	ID                uuid.UUID     `json:"id"`
	SiteID            uuid.UUID     `json:"site_id"`
	SiteName          string        `json:"site_name"`
	EngineerID        string        `json:"deployment_engineer_id"`
	EngineerName      string        `json:"deployment_engineer_name"`
	Status            Status        `json:"status"`
	SubmittedAt       time.Time     `json:"submitted_at"`
	ReviewedBy        *string       `json:"reviewed_by"`
	ReviewedAt        *time.Time    `json:"reviewed_at"`
	ReviewComment     *string       `json:"review_comment"`
	RejectionReason   *string       `json:"rejection_reason"`
	Scoping           ScopingData   `json:"scoping_data"`
	Costs             CostBreakdown `json:"cost_breakdown"`
	Version           int           `json:"version"`
	PreviousVersionID *uuid.UUID    `json:"previous_version_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Action is one entry in the per-approval action log.
type Action struct {
	ID              uuid.UUID      `json:"id"`
	ApprovalID      uuid.UUID      `json:"approval_id"`
	Action          ActionType     `json:"action"`
	PerformedBy     string         `json:"performed_by"`
	PerformedByRole string         `json:"performed_by_role"`
	PerformedAt     time.Time      `json:"performed_at"`
	Comment         *string        `json:"comment"`
	Metadata        map[string]any `json:"metadata"`
}

var (
	// ErrNotFound indicates the approval record does not exist.
	ErrNotFound = errors.New("approval: not found")
	// ErrEmptyComment occurs when a required review comment is blank.
	ErrEmptyComment = errors.New("approval: review comment required")
	// ErrUnauthorizedActor occurs when the actor fails a transition guard.
	ErrUnauthorizedActor = errors.New("approval: actor not permitted")
	// ErrTerminalState occurs on any transition attempt against an
	// approved or rejected record.
	ErrTerminalState = errors.New("approval: request already resolved")
	// ErrInvalidState occurs when the transition is not defined for the
	// record's current status (e.g. resubmitting a pending record).
	ErrInvalidState = errors.New("approval: invalid state transition")
	// ErrPendingExists occurs when a site already has an open submission.
	ErrPendingExists = errors.New("approval: site already has a pending submission")
)
