package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Repair request statuses
const (
	RequestSuggested  = "suggested"
	RequestApproved   = "approved"
	RequestRejected   = "rejected"
	RequestPlanned    = "planned"
	RequestScheduled  = "scheduled"
	RequestInProgress = "in-progress"
	RequestCompleted  = "completed"
)

// Severity values, lowest first
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
	SeverityUrgent = "urgent"
)

// RepairRequest is an owner-submitted report of something that needs fixing.
type RepairRequest struct {
	Meta
	Title          string              `json:"title" validate:"required"`
	Description    string              `json:"description,omitempty"`
	Area           string              `json:"area,omitempty"`
	Severity       string              `json:"severity" validate:"omitempty,oneof=low medium high urgent"`
	EstimatedCost  decimal.NullDecimal `json:"estimatedCost"`
	ActualCost     decimal.NullDecimal `json:"actualCost"`
	SubmittedBy    string              `json:"submittedBy" validate:"required"`
	SubmitterName  string              `json:"submitterName,omitempty"`
	SubmitterEmail string              `json:"submitterEmail,omitempty"`
	SubmitterUnit  string              `json:"submitterUnit,omitempty"`

	Status        string    `json:"status" validate:"required,oneof=suggested approved rejected planned scheduled in-progress completed"`
	StatusHistory StatusLog `json:"statusHistory"`

	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedBy      string     `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CompletedDate   *time.Time `json:"completedDate,omitempty"`

	Converted          bool       `json:"converted"`
	ConvertedProjectID string     `json:"convertedProjectId,omitempty"`
	ConvertedAt        *time.Time `json:"convertedAt,omitempty"`
	ConvertedBy        string     `json:"convertedBy,omitempty"`
}

// StatusEntry is one line of a status history.
type StatusEntry struct {
	Status    string    `json:"status"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
	Reason    string    `json:"reason,omitempty"`
}

// StatusLog is an append-only ordered status history. It can only grow:
// there is no way to remove or reorder entries, and the repository never
// writes it back wholesale after creation.
type StatusLog struct {
	entries []StatusEntry
}

// NewStatusLog starts a history with its initial entry.
func NewStatusLog(first StatusEntry) StatusLog {
	return StatusLog{entries: []StatusEntry{first}}
}

// Len returns the number of recorded entries.
func (l StatusLog) Len() int { return len(l.entries) }

// Last returns the most recent entry.
func (l StatusLog) Last() (StatusEntry, bool) {
	if len(l.entries) == 0 {
		return StatusEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Entries returns a copy of the history, oldest first.
func (l StatusLog) Entries() []StatusEntry {
	out := make([]StatusEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l StatusLog) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

func (l *StatusLog) UnmarshalJSON(data []byte) error {
	var entries []StatusEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}
