package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
)

// AccessService manages user memberships of a strata.
type AccessService struct {
	set    *repository.Set
	logger *slog.Logger
}

// NewAccessService creates an access service
func NewAccessService(set *repository.Set, logger *slog.Logger) *AccessService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessService{set: set, logger: logger}
}

// Assign grants userID a role in the tenant. A user holds at most one
// access record per tenant; a second assignment is a ConflictError.
func (s *AccessService) Assign(ctx context.Context, tenantID, userID, role string, canPostAnnouncements bool) (domain.UserTenantAccess, error) {
	if userID == "" {
		return domain.UserTenantAccess{}, domain.NewValidationError("userId", "is required")
	}
	if _, ok, err := s.set.Tenants.Get(ctx, tenantID); err != nil {
		return domain.UserTenantAccess{}, err
	} else if !ok {
		return domain.UserTenantAccess{}, &domain.NotFoundError{Kind: "tenant", ID: tenantID}
	}

	existing, err := s.set.Access.ListByTenant(ctx, tenantID, docstore.Eq("userId", userID))
	if err != nil {
		return domain.UserTenantAccess{}, err
	}
	if len(existing) > 0 {
		return existing[0], domain.NewConflictError("tenant access", existing[0].ID,
			fmt.Sprintf("user %s already has access to tenant %s", userID, tenantID))
	}

	// the derived id makes two racing assignments collide in the store
	out, err := s.set.Access.Create(ctx, domain.UserTenantAccess{
		Meta:                 domain.Meta{ID: accessID(tenantID, userID), TenantID: tenantID},
		UserID:               userID,
		Role:                 role,
		CanPostAnnouncements: canPostAnnouncements,
	})
	if err != nil {
		return domain.UserTenantAccess{}, err
	}
	s.logger.Info("access assigned",
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("role", role),
	)
	return out, nil
}

// ChangeRole updates the role of an existing membership.
func (s *AccessService) ChangeRole(ctx context.Context, tenantID, userID, role string) (domain.UserTenantAccess, error) {
	current, err := s.find(ctx, tenantID, userID)
	if err != nil {
		return domain.UserTenantAccess{}, err
	}
	return s.set.Access.Update(ctx, current.ID, func(a *domain.UserTenantAccess) error {
		a.Role = role
		return nil
	})
}

// Revoke removes every access record of userID in the tenant. The user
// account itself is kept.
func (s *AccessService) Revoke(ctx context.Context, tenantID, userID string) error {
	records, err := s.set.Access.ListByTenant(ctx, tenantID, docstore.Eq("userId", userID))
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range records {
		if err := s.set.Access.Delete(ctx, a.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Members lists the tenant's access records.
func (s *AccessService) Members(ctx context.Context, tenantID string) ([]domain.UserTenantAccess, error) {
	return s.set.Access.ListByTenant(ctx, tenantID)
}

func (s *AccessService) find(ctx context.Context, tenantID, userID string) (domain.UserTenantAccess, error) {
	records, err := s.set.Access.ListByTenant(ctx, tenantID, docstore.Eq("userId", userID))
	if err != nil {
		return domain.UserTenantAccess{}, err
	}
	if len(records) == 0 {
		return domain.UserTenantAccess{}, &domain.NotFoundError{Kind: "tenant access", ID: accessID(tenantID, userID)}
	}
	return records[0], nil
}

func accessID(tenantID, userID string) string {
	return tenantID + "_" + userID
}
