package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/security/ratelimit"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

// Tenant deletions allowed per tenant per window
const (
	deleteLimit  = 3
	deleteWindow = time.Hour
)

// TenantHandler serves tenant-level operations
type TenantHandler struct {
	deletion *service.TenantDeletionService
	access   *service.AccessService
	authz    *security.AuthorizationService
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// NewTenantHandler creates a tenant handler. A nil limiter disables the
// deletion limit.
func NewTenantHandler(
	deletion *service.TenantDeletionService,
	access *service.AccessService,
	authz *security.AuthorizationService,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *TenantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantHandler{deletion: deletion, access: access, authz: authz, limiter: limiter, logger: logger}
}

// Register adds the handler's routes to mux
func (h *TenantHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("DELETE /api/tenants/{tenantId}", h.Delete)
	mux.HandleFunc("GET /api/tenants/{tenantId}/access", h.Members)
	mux.HandleFunc("POST /api/tenants/{tenantId}/access", h.Assign)
	mux.HandleFunc("PATCH /api/tenants/{tenantId}/access/{userId}", h.ChangeRole)
	mux.HandleFunc("DELETE /api/tenants/{tenantId}/access/{userId}", h.Revoke)
}

// DeletionResponse reports a tenant deletion. Error is set on partial
// failure, when the report says how far the deletion got.
type DeletionResponse struct {
	Report *service.DeletionReport `json:"report"`
	Error  string                  `json:"error,omitempty"`
}

// Delete handles DELETE /api/tenants/{tenantId}. A partial failure answers
// 207 with the report so the caller can resume.
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermDeleteTenant)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if h.limiter != nil && !h.limiter.AllowStrict("delete:"+claims.TenantID, deleteLimit, deleteWindow) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "tenant deletion rate limit exceeded"})
		return
	}

	report, err := h.deletion.DeleteTenant(r.Context(), claims.TenantID, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrPartialFailure) {
			writeJSON(w, http.StatusMultiStatus, DeletionResponse{Report: report, Error: err.Error()})
			return
		}
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeletionResponse{Report: report})
}

func (h *TenantHandler) Members(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadTenant)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	members, err := h.access.Members(r.Context(), claims.TenantID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type accessBody struct {
	UserID               string `json:"userId"`
	Role                 string `json:"role"`
	CanPostAnnouncements bool   `json:"canPostAnnouncements"`
}

func (h *TenantHandler) Assign(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageAccess)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var body accessBody
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, err := h.access.Assign(r.Context(), claims.TenantID, body.UserID, body.Role, body.CanPostAnnouncements)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *TenantHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageAccess)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var body accessBody
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, err := h.access.ChangeRole(r.Context(), claims.TenantID, r.PathValue("userId"), body.Role)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *TenantHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageAccess)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.access.Revoke(r.Context(), claims.TenantID, r.PathValue("userId")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
