package sites

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Stage tracks a site through the deployment workflow.
type Stage string

const (
	StageCreated              Stage = "created"
	StageStudyInProgress      Stage = "study_in_progress"
	StageStudyCompleted       Stage = "study_completed"
	StageHardwareScoped       Stage = "hardware_scoped"
	StageApprovalPending      Stage = "approval_pending"
	StageApprovalApproved     Stage = "approval_approved"
	StageApprovalRejected     Stage = "approval_rejected"
	StageDeploymentScheduled  Stage = "deployment_scheduled"
	StageDeploymentInProgress Stage = "deployment_in_progress"
	StageDeploymentCompleted  Stage = "deployment_completed"
	StageLiveReady            Stage = "live_ready"
	StageLive                 Stage = "live"
)

// stageSuccessors defines the allowed workflow edges. Rejected approvals
// loop back to scoping so the engineer can revise and resubmit.
var stageSuccessors = map[Stage][]Stage{
	StageCreated:              {StageStudyInProgress},
	StageStudyInProgress:      {StageStudyCompleted},
	StageStudyCompleted:       {StageHardwareScoped},
	StageHardwareScoped:       {StageApprovalPending},
	StageApprovalPending:      {StageApprovalApproved, StageApprovalRejected},
	StageApprovalApproved:     {StageDeploymentScheduled},
	StageApprovalRejected:     {StageHardwareScoped},
	StageDeploymentScheduled:  {StageDeploymentInProgress},
	StageDeploymentInProgress: {StageDeploymentCompleted},
	StageDeploymentCompleted:  {StageLiveReady},
	StageLiveReady:            {StageLive},
	StageLive:                 {},
}

// Valid reports whether the stage is part of the workflow.
func (s Stage) Valid() bool {
	_, ok := stageSuccessors[s]
	return ok
}

// CanAdvanceTo reports whether the workflow permits moving to next.
func (s Stage) CanAdvanceTo(next Stage) bool {
	for _, succ := range stageSuccessors[s] {
		if succ == next {
			return true
		}
	}
	return false
}

// Priority levels carried from site intake.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Site is a retail or hospitality location moving through deployment.
type Site struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Organization string     `json:"organization"`
	UnitCode     string     `json:"unit_code"`
	Sector       string     `json:"sector"`
	Location     string     `json:"location"`
	Postcode     string     `json:"postcode"`
	Region       string     `json:"region"`
	Country      string     `json:"country"`
	GoLiveDate   *time.Time `json:"go_live_date"`
	Priority     Priority   `json:"priority"`
	Stage        Stage      `json:"stage"`
	OpsManagerID *string    `json:"assigned_ops_manager_id"`
	EngineerID   *string    `json:"assigned_deployment_engineer_id"`
	Notes        string     `json:"notes"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// StudyStatus tracks a site study document.
type StudyStatus string

const (
	StudyInProgress StudyStatus = "in_progress"
	StudyCompleted  StudyStatus = "completed"
	StudyReviewed   StudyStatus = "reviewed"
)

// Study is the on-site survey attached to a site.
type Study struct {
	ID        uuid.UUID   `json:"id"`
	SiteID    uuid.UUID   `json:"site_id"`
	Findings  string      `json:"findings"`
	Status    StudyStatus `json:"status"`
	CreatedBy string      `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

var (
	// ErrNotFound indicates the site or study does not exist.
	ErrNotFound = errors.New("sites: not found")
	// ErrInvalidStage occurs when a stage change breaks the workflow order.
	ErrInvalidStage = errors.New("sites: invalid stage transition")
	// ErrForbidden occurs when the actor may not act on this site.
	ErrForbidden = errors.New("sites: not permitted")
	// ErrDuplicateUnitCode occurs when a unit code is already registered.
	ErrDuplicateUnitCode = errors.New("sites: unit code already in use")
)
