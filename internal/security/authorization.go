package security

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermReadTenant       Permission = "read_tenant"
	PermSubmitRequest    Permission = "submit_request"
	PermManageRequests   Permission = "manage_requests"
	PermConvertRequest   Permission = "convert_request"
	PermManageProjects   Permission = "manage_projects"
	PermManageAccess     Permission = "manage_access"
	PermDeleteTenant     Permission = "delete_tenant"
	PermReadNotification Permission = "read_notifications"

	PermReviewRegistrations Permission = "review_registrations"
)

var residentPermissions = []Permission{
	PermReadTenant,
	PermSubmitRequest,
	PermReadNotification,
}

var committeePermissions = append(slices.Clone(residentPermissions),
	PermManageRequests,
	PermConvertRequest,
	PermManageProjects,
)

// RolePermissions maps strata roles to their permissions
var RolePermissions = map[string][]Permission{
	domain.RoleAdmin:       append(slices.Clone(committeePermissions), PermManageAccess, PermDeleteTenant),
	domain.RoleChairperson: append(slices.Clone(committeePermissions), PermManageAccess),
	domain.RoleSecretary:   committeePermissions,
	domain.RoleTreasurer:   committeePermissions,
	domain.RoleOwner:       residentPermissions,
	domain.RoleTenant:      residentPermissions,
	domain.RoleOperator:    {PermReviewRegistrations},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role string, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}

// ValidatePermission validates that a role has a specific permission
func (as *AuthorizationService) ValidatePermission(role string, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", role),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", ErrForbidden, role, permission)
	}
	return nil
}

// ValidateTenantAccess checks that the actor's tenant matches the one addressed
func (as *AuthorizationService) ValidateTenantAccess(userTenantID, requestedTenantID string) error {
	if userTenantID != requestedTenantID {
		as.logger.Warn("tenant access denied",
			slog.String("user_tenant", userTenantID),
			slog.String("requested_tenant", requestedTenantID),
		)
		return fmt.Errorf("%w: invalid tenant", ErrForbidden)
	}
	return nil
}
