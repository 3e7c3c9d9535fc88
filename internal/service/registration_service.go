package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
	"github.com/aryan0dhankhar/stratahub/internal/security/audit"
)

// RegistrationService runs the strata sign-up workflow: a registration is
// submitted, then an operator approves it into a tenant or rejects it.
type RegistrationService struct {
	set    *repository.Set
	access *AccessService
	audit  *audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

// Registration is a new strata sign-up
type Registration struct {
	StrataName    string         `json:"strataName"`
	ContactEmail  string         `json:"contactEmail"`
	ContactName   string         `json:"contactName,omitempty"`
	ContactUserID string         `json:"contactUserId,omitempty"`
	Address       domain.Address `json:"address"`
	UnitCount     int            `json:"unitCount"`
}

// Approval is the result of approving a registration
type Approval struct {
	Registration domain.PendingRegistration `json:"registration"`
	Tenant       domain.Tenant              `json:"tenant"`
}

// NewRegistrationService creates a registration service
func NewRegistrationService(set *repository.Set, access *AccessService, auditLogger *audit.Logger, logger *slog.Logger) *RegistrationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationService{set: set, access: access, audit: auditLogger, logger: logger, now: time.Now}
}

// Submit stores a pending registration.
func (s *RegistrationService) Submit(ctx context.Context, r Registration) (domain.PendingRegistration, error) {
	out, err := s.set.PendingRegistrations.Create(ctx, domain.PendingRegistration{
		StrataName:    strings.TrimSpace(r.StrataName),
		ContactEmail:  strings.TrimSpace(r.ContactEmail),
		ContactName:   r.ContactName,
		ContactUserID: r.ContactUserID,
		Address:       r.Address,
		UnitCount:     r.UnitCount,
		Status:        domain.RegistrationPending,
	})
	if err != nil {
		return domain.PendingRegistration{}, err
	}
	s.logger.Info("registration submitted",
		slog.String("registration_id", out.ID),
		slog.String("strata_name", out.StrataName),
	)
	return out, nil
}

// Get returns one registration.
func (s *RegistrationService) Get(ctx context.Context, id string) (domain.PendingRegistration, error) {
	reg, ok, err := s.set.PendingRegistrations.Get(ctx, id)
	if err != nil {
		return domain.PendingRegistration{}, err
	}
	if !ok {
		return domain.PendingRegistration{}, &domain.NotFoundError{Kind: "registration", ID: id}
	}
	return reg, nil
}

// List returns registrations oldest first, optionally only those in status.
func (s *RegistrationService) List(ctx context.Context, status string) ([]domain.PendingRegistration, error) {
	var filters []docstore.Filter
	if status != "" {
		filters = append(filters, docstore.Eq("status", status))
	}
	return s.set.PendingRegistrations.Find(ctx, repository.Query[domain.PendingRegistration]{
		Filters: filters,
		Less: func(a, b domain.PendingRegistration) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		},
	})
}

// Approve turns a pending registration into a tenant. The approver becomes
// its admin and the contact user, when named, its chairperson. Each step
// tolerates having already run, so a failed approval can be retried.
func (s *RegistrationService) Approve(ctx context.Context, id, approverID string) (out Approval, err error) {
	defer func() {
		s.audit.LogRegistrationReview(ctx, out.Tenant.ID, approverID, "approve", id, "", err)
	}()

	if approverID == "" {
		return Approval{}, domain.NewValidationError("approverId", "is required")
	}
	reg, err := s.pending(ctx, id)
	if err != nil {
		return Approval{}, err
	}

	tenant, err := s.set.Tenants.Create(ctx, domain.Tenant{
		Meta:      domain.Meta{ID: reg.ID},
		Name:      reg.StrataName,
		Address:   reg.Address,
		UnitCount: reg.UnitCount,
		Status:    domain.TenantActive,
	})
	if errors.Is(err, domain.ErrConflict) {
		// an earlier approval got this far
		var ok bool
		tenant, ok, err = s.set.Tenants.Get(ctx, reg.ID)
		if err == nil && !ok {
			err = &domain.NotFoundError{Kind: "tenant", ID: reg.ID}
		}
	}
	if err != nil {
		return Approval{}, fmt.Errorf("create tenant: %w", err)
	}

	if err := s.grant(ctx, tenant.ID, approverID, domain.RoleAdmin); err != nil {
		return Approval{}, err
	}
	if reg.ContactUserID != "" {
		if err := s.ensureContact(ctx, reg); err != nil {
			return Approval{}, err
		}
		if err := s.grant(ctx, tenant.ID, reg.ContactUserID, domain.RoleChairperson); err != nil {
			return Approval{}, err
		}
	}

	now := s.now().UTC()
	reg, err = s.set.PendingRegistrations.Update(ctx, reg.ID, func(r *domain.PendingRegistration) error {
		r.Status = domain.RegistrationApproved
		r.ReviewedBy = approverID
		r.ReviewedAt = &now
		r.CreatedTenantID = tenant.ID
		return nil
	})
	if err != nil {
		return Approval{}, fmt.Errorf("mark registration approved: %w", err)
	}

	s.logger.Info("registration approved",
		slog.String("registration_id", reg.ID),
		slog.String("tenant_id", tenant.ID),
		slog.String("approver_id", approverID),
	)
	return Approval{Registration: reg, Tenant: tenant}, nil
}

// Reject closes a pending registration. A reason is required.
func (s *RegistrationService) Reject(ctx context.Context, id, reviewerID, reason string) (out domain.PendingRegistration, err error) {
	defer func() {
		s.audit.LogRegistrationReview(ctx, "", reviewerID, "reject", id, reason, err)
	}()

	if reviewerID == "" {
		return domain.PendingRegistration{}, domain.NewValidationError("reviewerId", "is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.PendingRegistration{}, domain.NewValidationError("reason", "is required when rejecting")
	}
	if _, err := s.pending(ctx, id); err != nil {
		return domain.PendingRegistration{}, err
	}

	now := s.now().UTC()
	out, err = s.set.PendingRegistrations.Update(ctx, id, func(r *domain.PendingRegistration) error {
		r.Status = domain.RegistrationRejected
		r.ReviewedBy = reviewerID
		r.ReviewedAt = &now
		r.RejectionReason = reason
		return nil
	})
	if err != nil {
		return domain.PendingRegistration{}, err
	}
	s.logger.Info("registration rejected",
		slog.String("registration_id", id),
		slog.String("reviewer_id", reviewerID),
	)
	return out, nil
}

func (s *RegistrationService) pending(ctx context.Context, id string) (domain.PendingRegistration, error) {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return domain.PendingRegistration{}, err
	}
	if reg.Status != domain.RegistrationPending {
		return domain.PendingRegistration{}, domain.NewConflictError("registration", id, "already "+reg.Status)
	}
	return reg, nil
}

// grant assigns role unless the user already has access.
func (s *RegistrationService) grant(ctx context.Context, tenantID, userID, role string) error {
	_, err := s.access.Assign(ctx, tenantID, userID, role, true)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("grant %s to %s: %w", role, userID, err)
	}
	return nil
}

// ensureContact creates the contact's user account when it does not exist.
func (s *RegistrationService) ensureContact(ctx context.Context, reg domain.PendingRegistration) error {
	_, ok, err := s.set.Users.Get(ctx, reg.ContactUserID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = s.set.Users.Create(ctx, domain.User{
		Meta:        domain.Meta{ID: reg.ContactUserID},
		Email:       reg.ContactEmail,
		DisplayName: reg.ContactName,
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("create contact user: %w", err)
	}
	return nil
}
