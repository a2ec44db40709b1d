package assets

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AssetStatus tracks where a physical asset sits in its lifecycle.
type AssetStatus string

const (
	AssetAvailable   AssetStatus = "available"
	AssetDeployed    AssetStatus = "deployed"
	AssetMaintenance AssetStatus = "maintenance"
	AssetRetired     AssetStatus = "retired"
)

// Asset is one piece of tracked hardware.
type Asset struct {
	ID           uuid.UUID   `json:"id"`
	Type         string      `json:"type"`
	Model        string      `json:"model"`
	SerialNumber string      `json:"serial_number"`
	SiteID       *uuid.UUID  `json:"site_id"`
	Status       AssetStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// LicenseStatus tracks a license's validity.
type LicenseStatus string

const (
	LicenseActive         LicenseStatus = "active"
	LicenseExpired        LicenseStatus = "expired"
	LicensePendingRenewal LicenseStatus = "pending_renewal"
	LicenseSuspended      LicenseStatus = "suspended"
)

// LicenseType distinguishes what the license covers.
type LicenseType string

const (
	LicenseHardware LicenseType = "hardware"
	LicenseSoftware LicenseType = "software"
	LicenseService  LicenseType = "service"
)

// License is a purchased entitlement, optionally tied to an asset.
type License struct {
	ID         uuid.UUID     `json:"id"`
	AssetID    *uuid.UUID    `json:"asset_id"`
	LicenseKey string        `json:"license_key"`
	Type       LicenseType   `json:"type"`
	Status     LicenseStatus `json:"status"`
	Vendor     string        `json:"vendor"`
	Cost       float64       `json:"cost"`
	StartDate  time.Time     `json:"start_date"`
	ExpiryDate *time.Time    `json:"expiry_date"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

var (
	// ErrNotFound indicates the asset or license does not exist.
	ErrNotFound = errors.New("assets: not found")
	// ErrDuplicateSerial occurs when a serial number is already registered.
	ErrDuplicateSerial = errors.New("assets: serial number already registered")
	// ErrNotDeployable occurs when a non-available asset is assigned to a site.
	ErrNotDeployable = errors.New("assets: asset is not available for deployment")
)
