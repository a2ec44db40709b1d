package settings

import (
	"errors"
	"time"
)

// Well-known setting keys.
const (
	// KeyApprovalResponseTime holds the review SLA as a Go duration
	// string, e.g. "24h".
	KeyApprovalResponseTime = "approval_response_time"
)

// DefaultApprovalResponseTime applies when no override is stored.
const DefaultApprovalResponseTime = 24 * time.Hour

// Setting is a single platform configuration entry.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedBy *string   `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the setting key does not exist.
	ErrNotFound = errors.New("settings: not found")
	// ErrForbidden occurs when a non-admin attempts an update.
	ErrForbidden = errors.New("settings: admin access required")
	// ErrInvalidValue occurs when a value fails key-specific validation.
	ErrInvalidValue = errors.New("settings: invalid value")
)
