package handler

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/security/auth"
	"github.com/aryan0dhankhar/stratahub/internal/security/middleware"
	"github.com/aryan0dhankhar/stratahub/internal/security/ratelimit"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

// Sign-ups allowed per client address per window
const (
	registrationLimit  = 5
	registrationWindow = time.Hour
)

// RegistrationHandler serves strata sign-up. Submitting is public; review
// is for platform operators.
type RegistrationHandler struct {
	registrations *service.RegistrationService
	authz         *security.AuthorizationService
	limiter       *ratelimit.Limiter
	logger        *slog.Logger
}

// NewRegistrationHandler creates a registration handler. A nil limiter
// disables the sign-up limit.
func NewRegistrationHandler(
	registrations *service.RegistrationService,
	authz *security.AuthorizationService,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *RegistrationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationHandler{registrations: registrations, authz: authz, limiter: limiter, logger: logger}
}

// Register adds the handler's routes to mux
func (h *RegistrationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/registrations", h.Submit)
	mux.HandleFunc("GET /api/registrations", h.List)
	mux.HandleFunc("GET /api/registrations/{id}", h.Get)
	mux.HandleFunc("POST /api/registrations/{id}/approve", h.Approve)
	mux.HandleFunc("POST /api/registrations/{id}/reject", h.Reject)
}

// Submit handles POST /api/registrations
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.AllowStrict("register:"+clientAddr(r), registrationLimit, registrationWindow) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "registration rate limit exceeded"})
		return
	}
	var body service.Registration
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	reg, err := h.registrations.Submit(r.Context(), body)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// List handles GET /api/registrations?status=pending
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.operator(r); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	list, err := h.registrations.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, err := h.operator(r); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	reg, err := h.registrations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (h *RegistrationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims, err := h.operator(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	out, err := h.registrations.Approve(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RegistrationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims, err := h.operator(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	reg, err := h.registrations.Reject(r.Context(), r.PathValue("id"), claims.UserID, body.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// operator resolves a platform operator caller.
func (h *RegistrationHandler) operator(r *http.Request) (*auth.Claims, error) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return nil, security.ErrForbidden
	}
	if err := h.authz.ValidateTenantAccess(claims.TenantID, domain.PlatformTenantID); err != nil {
		return nil, err
	}
	if err := h.authz.ValidatePermission(claims.Role, security.PermReviewRegistrations); err != nil {
		return nil, err
	}
	return claims, nil
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
