package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

// NotificationHandler serves the caller's own notifications
type NotificationHandler struct {
	notifications *service.NotificationService
	authz         *security.AuthorizationService
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, authz *security.AuthorizationService, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{notifications: notifications, authz: authz, logger: logger}
}

// Register adds the handler's routes to mux
func (h *NotificationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tenants/{tenantId}/notifications", h.List)
	mux.HandleFunc("POST /api/tenants/{tenantId}/notifications/{id}/read", h.MarkRead)
	mux.HandleFunc("POST /api/tenants/{tenantId}/notifications/{id}/dismiss", h.Dismiss)
}

// List handles GET .../notifications?includeDismissed=true
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadNotification)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	includeDismissed, _ := strconv.ParseBool(r.URL.Query().Get("includeDismissed"))
	list, err := h.notifications.ListForUser(r.Context(), claims.TenantID, claims.UserID, includeDismissed)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadNotification)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	n, err := h.notifications.MarkRead(r.Context(), claims.TenantID, claims.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadNotification)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	n, err := h.notifications.Dismiss(r.Context(), claims.TenantID, claims.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
