package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tenant status values
const (
	TenantActive   = "active"
	TenantInactive = "inactive"
	TenantArchived = "archived"
)

// Strata roles
const (
	RoleAdmin       = "admin"
	RoleChairperson = "chairperson"
	RoleTreasurer   = "treasurer"
	RoleSecretary   = "secretary"
	RoleOwner       = "owner"
	RoleTenant      = "tenant"

	// RoleOperator runs the platform itself. Operator tokens carry
	// PlatformTenantID and reach no strata data.
	RoleOperator = "operator"
)

// PlatformTenantID is the tenant claim of operator tokens
const PlatformTenantID = "platform"

// Tenant is a strata: the root partition owning every other record. Its own
// ID is the tenantId every dependent record carries.
type Tenant struct {
	Meta
	Name         string       `json:"name" validate:"required"`
	Address      Address      `json:"address"`
	UnitCount    int          `json:"unitCount" validate:"gte=0"`
	Subscription Subscription `json:"subscription"`
	Status       string       `json:"status" validate:"omitempty,oneof=active inactive archived"`
}

// Address of a strata property
type Address struct {
	Street   string `json:"street,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Postcode string `json:"postcode,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Subscription is the billing state of a strata
type Subscription struct {
	Tier        string          `json:"tier,omitempty"`
	MonthlyRate decimal.Decimal `json:"monthlyRate"`
	FreeForever bool            `json:"freeForever"`
	TrialEndsAt *time.Time      `json:"trialEndsAt,omitempty"`
	Status      string          `json:"status,omitempty"` // trial, active, past_due, cancelled
}

// User is a global account. Users outlive their tenant memberships.
type User struct {
	Meta
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"displayName,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// UserTenantAccess joins a user to a strata with a role. Uniqueness per
// (userId, tenantId) is enforced by the access service, not the store.
type UserTenantAccess struct {
	Meta
	UserID               string `json:"userId" validate:"required"`
	Role                 string `json:"role" validate:"required,oneof=admin chairperson treasurer secretary owner tenant"`
	CanPostAnnouncements bool   `json:"canPostAnnouncements"`
}

// IsAdministrator reports whether the role receives administrative notifications.
func IsAdministrator(role string) bool {
	switch role {
	case RoleAdmin, RoleChairperson, RoleSecretary, RoleTreasurer:
		return true
	}
	return false
}

// Registration status values
const (
	RegistrationPending  = "pending"
	RegistrationApproved = "approved"
	RegistrationRejected = "rejected"
)

// PendingRegistration is a strata sign-up awaiting approval. It is global
// because the tenant does not exist yet. Approval creates a tenant whose ID
// is the registration ID.
type PendingRegistration struct {
	Meta
	StrataName    string  `json:"strataName" validate:"required"`
	ContactEmail  string  `json:"contactEmail" validate:"required,email"`
	ContactName   string  `json:"contactName,omitempty"`
	ContactUserID string  `json:"contactUserId,omitempty"`
	Address       Address `json:"address"`
	UnitCount     int     `json:"unitCount" validate:"gte=0"`
	Status        string  `json:"status" validate:"omitempty,oneof=pending approved rejected"`

	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CreatedTenantID string     `json:"createdTenantId,omitempty"`
}
