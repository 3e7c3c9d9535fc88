package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Leaf entities. They carry no workflow beyond simple status enums and are
// stored only to be listed, edited and cascaded with their tenant.

const (
	ExpensePending  = "pending"
	ExpenseApproved = "approved"
	ExpenseRejected = "rejected"

	FundAdministrative = "administrative"
	FundCapitalWorks   = "capital_works"
	FundSinking        = "sinking"

	TransactionCredit = "credit"
	TransactionDebit  = "debit"
)

type Unit struct {
	Meta
	UnitNumber  string `json:"unitNumber" validate:"required"`
	OwnerName   string `json:"ownerName,omitempty"`
	OwnerEmail  string `json:"ownerEmail,omitempty" validate:"omitempty,email"`
	Entitlement int    `json:"entitlement" validate:"gte=0"`
}

type Expense struct {
	Meta
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Status      string          `json:"status" validate:"required,oneof=pending approved rejected"`
	VendorID    string          `json:"vendorId,omitempty"`
	FundID      string          `json:"fundId,omitempty"`
	IncurredAt  *time.Time      `json:"incurredAt,omitempty"`
}

type Vendor struct {
	Meta
	Name     string `json:"name" validate:"required"`
	Category string `json:"category,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty"`
}

type VendorContract struct {
	Meta
	VendorID string          `json:"vendorId" validate:"required"`
	Title    string          `json:"title" validate:"required"`
	Value    decimal.Decimal `json:"value"`
	StartsAt *time.Time      `json:"startsAt,omitempty"`
	EndsAt   *time.Time      `json:"endsAt,omitempty"`
}

type VendorHistory struct {
	Meta
	VendorID string `json:"vendorId" validate:"required"`
	Event    string `json:"event" validate:"required"`
	Notes    string `json:"notes,omitempty"`
}

type Quote struct {
	Meta
	VendorID        string          `json:"vendorId,omitempty"`
	RepairRequestID string          `json:"repairRequestId,omitempty"`
	ProjectID       string          `json:"projectId,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status" validate:"required,oneof=pending accepted declined"`
	ValidUntil      *time.Time      `json:"validUntil,omitempty"`
}

type Meeting struct {
	Meta
	Title       string    `json:"title" validate:"required"`
	Type        string    `json:"type,omitempty"` // agm, egm, committee
	ScheduledAt time.Time `json:"scheduledAt"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status" validate:"required,oneof=scheduled held cancelled"`
}

type Document struct {
	Meta
	Name        string `json:"name" validate:"required"`
	FolderID    string `json:"folderId,omitempty"`
	StoragePath string `json:"storagePath,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	UploadedBy  string `json:"uploadedBy,omitempty"`
}

type DocumentFolder struct {
	Meta
	Name     string `json:"name" validate:"required"`
	ParentID string `json:"parentId,omitempty"`
}

type Announcement struct {
	Meta
	Title    string `json:"title" validate:"required"`
	Body     string `json:"body,omitempty"`
	AuthorID string `json:"authorId" validate:"required"`
	Priority string `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`
}

type Message struct {
	Meta
	SenderID    string `json:"senderId" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body,omitempty"`
	Read        bool   `json:"read"`
}

type Fund struct {
	Meta
	Name    string          `json:"name" validate:"required"`
	Type    string          `json:"type" validate:"required,oneof=administrative capital_works sinking"`
	Balance decimal.Decimal `json:"balance"`
}

// FundTransaction lives in the funds/{fundId}/transactions sub-collection.
type FundTransaction struct {
	Meta
	FundID      string          `json:"fundId" validate:"required"`
	Type        string          `json:"type" validate:"required,oneof=credit debit"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type PaymentReminder struct {
	Meta
	UnitID  string          `json:"unitId" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"dueDate"`
	Status  string          `json:"status" validate:"required,oneof=pending sent paid"`
}
