package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/lifecycle"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/security/audit"
	"github.com/aryan0dhankhar/stratahub/internal/security/auth"
	"github.com/aryan0dhankhar/stratahub/internal/security/middleware"
	"github.com/aryan0dhankhar/stratahub/internal/security/ratelimit"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

type api struct {
	t      *testing.T
	srv    *httptest.Server
	set    *repository.Set
	tokens *auth.TokenManager
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := repository.NewSet(docstore.NewMemoryStore(), 1, logger)
	authz := security.NewAuthorizationService(logger)
	auditLog := audit.NewLogger(logger)
	engine := lifecycle.NewEngine(set.RepairRequests, set.Projects, auditLog, logger)
	notifications := service.NewNotificationService(set, nil, logger)
	access := service.NewAccessService(set, logger)
	limiter := ratelimit.NewLimiter(1000, time.Minute)
	t.Cleanup(limiter.Stop)

	mux := http.NewServeMux()
	NewHealthHandler(map[string]Pinger{"store": set.Store, "redis": nil}, logger).Register(mux)
	NewRepairRequestHandler(
		service.NewRepairRequestService(set, engine, notifications, logger),
		service.NewConversionService(set, engine, notifications, auditLog, logger),
		authz, logger,
	).Register(mux)
	NewProjectHandler(service.NewProjectService(set, logger), engine, authz, logger).Register(mux)
	NewTenantHandler(service.NewTenantDeletionService(set, nil, auditLog, logger), access, authz, limiter, logger).Register(mux)
	NewNotificationHandler(notifications, authz, logger).Register(mux)
	NewRegistrationHandler(service.NewRegistrationService(set, access, auditLog, logger), authz, limiter, logger).Register(mux)

	tokens := auth.NewTokenManager("test-secret", "")
	srv := httptest.NewServer(middleware.Chain(mux,
		middleware.RequestID,
		middleware.JWTMiddleware(tokens, auditLog, logger),
		middleware.ValidateJSONContentType(logger),
	))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	_, err := set.Tenants.Create(ctx, domain.Tenant{Meta: domain.Meta{ID: "t1"}, Name: "Harbour View", Status: domain.TenantActive})
	require.NoError(t, err)
	_, err = set.Tenants.Create(ctx, domain.Tenant{Meta: domain.Meta{ID: "t2"}, Name: "Elm Court", Status: domain.TenantActive})
	require.NoError(t, err)
	for user, role := range map[string]string{"admin": domain.RoleAdmin, "chair": domain.RoleChairperson, "owner": domain.RoleOwner} {
		_, err := access.Assign(ctx, "t1", user, role, false)
		require.NoError(t, err)
	}
	return &api{t: t, srv: srv, set: set, tokens: tokens}
}

// do sends body as JSON acting as userID with role in tenant t1 and decodes
// the response into out when it is not nil.
func (a *api) do(method, path, userID, role string, body, out any) int {
	a.t.Helper()
	return a.doIn("t1", method, path, userID, role, body, out)
}

// doIn is do with a token for tenantID.
func (a *api) doIn(tenantID, method, path, userID, role string, body, out any) int {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := a.tokens.Issue(tenantID, userID, role, userID+"@example.com", time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRepairRequestFlow(t *testing.T) {
	a := newAPI(t)
	base := "/api/tenants/t1/repair-requests"

	var req domain.RepairRequest
	code := a.do(http.MethodPost, base, "owner", domain.RoleOwner, map[string]any{
		"title":         "Gate hinge broken",
		"severity":      "high",
		"estimatedCost": "420.00",
	}, &req)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.RequestSuggested, req.Status)
	assert.Equal(t, "owner", req.SubmittedBy)
	assert.Equal(t, "owner@example.com", req.SubmitterEmail)

	// residents cannot approve
	var errResp ErrorResponse
	code = a.do(http.MethodPost, base+"/"+req.ID+"/transition", "owner", domain.RoleOwner, map[string]any{"status": "approved"}, &errResp)
	assert.Equal(t, http.StatusForbidden, code)

	code = a.do(http.MethodPost, base+"/"+req.ID+"/transition", "chair", domain.RoleChairperson, map[string]any{"status": "rejected"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "reason", errResp.Field)

	code = a.do(http.MethodPost, base+"/"+req.ID+"/convert", "chair", domain.RoleChairperson, nil, &errResp)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, errResp.Error, "not approved")

	code = a.do(http.MethodPost, base+"/"+req.ID+"/transition", "chair", domain.RoleChairperson, map[string]any{"status": "approved"}, &req)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.RequestApproved, req.Status)

	var conv service.Conversion
	code = a.do(http.MethodPost, base+"/"+req.ID+"/convert", "chair", domain.RoleChairperson, nil, &conv)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, service.ProjectIDFor(req.ID), conv.Project.ID)
	assert.True(t, conv.Request.Converted)
	assert.Equal(t, domain.RequestPlanned, conv.Request.Status)

	code = a.do(http.MethodPost, base+"/"+req.ID+"/convert", "chair", domain.RoleChairperson, nil, &errResp)
	assert.Equal(t, http.StatusConflict, code)

	var list []domain.RepairRequest
	code = a.do(http.MethodGet, base+"?status=planned", "owner", domain.RoleOwner, nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)

	code = a.do(http.MethodGet, base+"/missing", "owner", domain.RoleOwner, nil, &errResp)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTenantScopeEnforced(t *testing.T) {
	a := newAPI(t)
	var errResp ErrorResponse

	// the token is for t1
	code := a.do(http.MethodGet, "/api/tenants/t2/projects", "chair", domain.RoleChairperson, nil, &errResp)
	assert.Equal(t, http.StatusForbidden, code)

	code = a.do(http.MethodGet, "/api/tenants/t1/projects", "", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestProjectRoutes(t *testing.T) {
	a := newAPI(t)
	base := "/api/tenants/t1/projects"

	var p domain.MaintenanceProject
	code := a.do(http.MethodPost, base, "chair", domain.RoleChairperson, map[string]any{
		"title":    "Repaint stairwell",
		"category": "painting",
	}, &p)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.ProjectPlanned, p.Status)
	assert.Equal(t, "t1", p.TenantID)

	code = a.do(http.MethodPost, base+"/"+p.ID+"/transition", "chair", domain.RoleChairperson, map[string]any{"status": "scheduled"}, &p)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, p.StatusHistory.Len())

	// only completed or cancelled projects can be archived
	code = a.do(http.MethodPost, base+"/"+p.ID+"/archive", "chair", domain.RoleChairperson, nil, nil)
	require.Equal(t, http.StatusConflict, code)

	code = a.do(http.MethodPost, base+"/"+p.ID+"/transition", "chair", domain.RoleChairperson, map[string]any{"status": "cancelled", "reason": "over budget"}, &p)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.ProjectCancelled, p.Status)

	code = a.do(http.MethodPost, base+"/"+p.ID+"/archive", "chair", domain.RoleChairperson, nil, &p)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, p.Archived)

	var list []domain.MaintenanceProject
	a.do(http.MethodGet, base, "owner", domain.RoleOwner, nil, &list)
	assert.Empty(t, list)
	a.do(http.MethodGet, base+"?includeArchived=true", "owner", domain.RoleOwner, nil, &list)
	assert.Len(t, list, 1)

	code = a.do(http.MethodPost, base+"/"+p.ID+"/unarchive", "chair", domain.RoleChairperson, nil, &p)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, p.Archived)
	assert.Equal(t, domain.ProjectCancelled, p.Status)

	code = a.do(http.MethodDelete, base+"/"+p.ID, "chair", domain.RoleChairperson, nil, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code = a.do(http.MethodDelete, base+"/"+p.ID, "chair", domain.RoleChairperson, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRegistrationRoutes(t *testing.T) {
	a := newAPI(t)
	base := "/api/registrations"

	// sign-up needs no token
	var reg domain.PendingRegistration
	code := a.do(http.MethodPost, base, "", "", map[string]any{
		"strataName":    "Bayside Towers",
		"contactEmail":  "sam@example.com",
		"contactName":   "Sam",
		"contactUserId": "sam",
		"unitCount":     40,
	}, &reg)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.RegistrationPending, reg.Status)

	var errResp ErrorResponse
	code = a.do(http.MethodPost, base, "", "", map[string]any{"strataName": "No Contact"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)

	// review is for operators only
	code = a.do(http.MethodGet, base, "admin", domain.RoleAdmin, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code = a.doIn(domain.PlatformTenantID, http.MethodGet, base, "admin", domain.RoleAdmin, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var pending []domain.PendingRegistration
	code = a.doIn(domain.PlatformTenantID, http.MethodGet, base+"?status=pending", "ops", domain.RoleOperator, nil, &pending)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, pending, 1)

	var approval service.Approval
	code = a.doIn(domain.PlatformTenantID, http.MethodPost, base+"/"+reg.ID+"/approve", "ops", domain.RoleOperator, nil, &approval)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, reg.ID, approval.Tenant.ID)
	assert.Equal(t, "Bayside Towers", approval.Tenant.Name)
	assert.Equal(t, domain.RegistrationApproved, approval.Registration.Status)

	code = a.doIn(domain.PlatformTenantID, http.MethodPost, base+"/"+reg.ID+"/approve", "ops", domain.RoleOperator, nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	// the new tenant is usable by its members
	var members []domain.UserTenantAccess
	code = a.doIn(reg.ID, http.MethodGet, "/api/tenants/"+reg.ID+"/access", "sam", domain.RoleChairperson, nil, &members)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, members, 2)

	var rejected domain.PendingRegistration
	code = a.do(http.MethodPost, base, "", "", map[string]any{"strataName": "Elm Court", "contactEmail": "jo@example.com"}, &rejected)
	require.Equal(t, http.StatusCreated, code)
	code = a.doIn(domain.PlatformTenantID, http.MethodPost, base+"/"+rejected.ID+"/reject", "ops", domain.RoleOperator, map[string]any{}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "reason", errResp.Field)
	code = a.doIn(domain.PlatformTenantID, http.MethodPost, base+"/"+rejected.ID+"/reject", "ops", domain.RoleOperator, map[string]any{"reason": "duplicate of t2"}, &rejected)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.RegistrationRejected, rejected.Status)
}

func TestDeleteTenantRoute(t *testing.T) {
	a := newAPI(t)

	code := a.do(http.MethodDelete, "/api/tenants/t1", "chair", domain.RoleChairperson, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var resp DeletionResponse
	code = a.do(http.MethodDelete, "/api/tenants/t1", "admin", domain.RoleAdmin, nil, &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.TenantFound)
	assert.Equal(t, 3, resp.Report.Deleted[domain.CollectionUserTenantAccess])

	_, ok, err := a.set.Tenants.Get(context.Background(), "t2")
	require.NoError(t, err)
	assert.True(t, ok)

	code = a.do(http.MethodDelete, "/api/tenants/t1", "admin", domain.RoleAdmin, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAccessRoutes(t *testing.T) {
	a := newAPI(t)
	base := "/api/tenants/t1/access"

	code := a.do(http.MethodPost, base, "chair", domain.RoleChairperson, map[string]any{"userId": "new", "role": "owner"}, nil)
	assert.Equal(t, http.StatusCreated, code)
	code = a.do(http.MethodPost, base, "chair", domain.RoleChairperson, map[string]any{"userId": "new", "role": "owner"}, nil)
	assert.Equal(t, http.StatusConflict, code)

	var members []domain.UserTenantAccess
	a.do(http.MethodGet, base, "owner", domain.RoleOwner, nil, &members)
	assert.Len(t, members, 4)

	code = a.do(http.MethodDelete, base+"/new", "chair", domain.RoleChairperson, nil, nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestNotificationRoutes(t *testing.T) {
	a := newAPI(t)
	n, err := a.set.Notifications.Create(context.Background(), domain.Notification{
		Meta:   domain.Meta{TenantID: "t1"},
		UserID: "owner",
		Type:   domain.NotificationMeeting,
		Title:  "AGM",
	})
	require.NoError(t, err)
	base := "/api/tenants/t1/notifications"

	code := a.do(http.MethodPost, base+"/"+n.ID+"/read", "chair", domain.RoleChairperson, nil, nil)
	assert.Equal(t, http.StatusNotFound, code, "only the recipient can mark read")

	var got domain.Notification
	code = a.do(http.MethodPost, base+"/"+n.ID+"/read", "owner", domain.RoleOwner, nil, &got)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, got.IsRead)

	code = a.do(http.MethodPost, base+"/"+n.ID+"/dismiss", "owner", domain.RoleOwner, nil, &got)
	require.Equal(t, http.StatusOK, code)

	var list []domain.Notification
	a.do(http.MethodGet, base, "owner", domain.RoleOwner, nil, &list)
	assert.Empty(t, list)
	a.do(http.MethodGet, base+"?includeDismissed=true", "owner", domain.RoleOwner, nil, &list)
	assert.Len(t, list, 1)
}

func TestHealthRoutes(t *testing.T) {
	a := newAPI(t)

	var ready ReadinessResponse
	code := a.do(http.MethodGet, "/readyz", "", "", nil, &ready)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", ready.Checks["store"])
	assert.Equal(t, "not configured", ready.Checks["redis"])

	code = a.do(http.MethodGet, "/healthz", "", "", nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.NotFoundError{Kind: "unit", ID: "u"}, http.StatusNotFound},
		{domain.NewValidationError("title", "is required"), http.StatusBadRequest},
		{domain.NewConflictError("project", "p", "stale"), http.StatusConflict},
		{&domain.TransportError{Op: "get", Err: io.ErrUnexpectedEOF}, http.StatusServiceUnavailable},
		{&domain.PartialFailureError{TenantID: "t1", Err: io.ErrUnexpectedEOF}, http.StatusMultiStatus},
		{security.ErrForbidden, http.StatusForbidden},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
