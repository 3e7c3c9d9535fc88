package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Maintenance project statuses
const (
	ProjectPlanned    = "planned"
	ProjectScheduled  = "scheduled"
	ProjectInProgress = "in-progress"
	ProjectCompleted  = "completed"
	ProjectCancelled  = "cancelled"
)

// Project categories
const (
	CategoryPlumbing    = "plumbing"
	CategoryElectrical  = "electrical"
	CategoryStructural  = "structural"
	CategoryLandscaping = "landscaping"
	CategoryPainting    = "painting"
	CategoryRoofing     = "roofing"
	CategoryHVAC        = "hvac"
	CategorySecurity    = "security"
	CategoryCleaning    = "cleaning"
	CategoryOther       = "other"
)

// MaintenanceProject is planned work on the common property. Archived is a
// soft delete orthogonal to Status.
type MaintenanceProject struct {
	Meta
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category" validate:"required,oneof=plumbing electrical structural landscaping painting roofing hvac security cleaning other"`
	Priority    string `json:"priority" validate:"required,oneof=low medium high urgent"`

	Status        string    `json:"status" validate:"required,oneof=planned scheduled in-progress completed cancelled"`
	StatusHistory StatusLog `json:"statusHistory"`

	EstimatedCost   decimal.NullDecimal `json:"estimatedCost"`
	ActualCost      decimal.NullDecimal `json:"actualCost"`
	ScheduledDate   *time.Time          `json:"scheduledDate,omitempty"`
	CompletedDate   *time.Time          `json:"completedDate,omitempty"`
	NextServiceDate *time.Time          `json:"nextServiceDate,omitempty"`
	Contractor      Contractor          `json:"contractor"`
	Warranty        Warranty            `json:"warranty"`

	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
	ArchivedBy string     `json:"archivedBy,omitempty"`

	SourceRepairRequestID string `json:"sourceRepairRequestId,omitempty"`
	CreatedBy             string `json:"createdBy,omitempty"`
}

// Contractor engaged for a project
type Contractor struct {
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
}

// Warranty on completed work
type Warranty struct {
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Details   string     `json:"details,omitempty"`
}

// PriorityForSeverity maps a repair request severity onto a project priority.
func PriorityForSeverity(severity string) string {
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityUrgent:
		return severity
	}
	return SeverityMedium
}
