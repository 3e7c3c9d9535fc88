// Package handler exposes the storage and workflow services as a JSON API.
// Every route is scoped to the tenant in its path, and the caller's token
// must belong to that tenant.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/security/auth"
	"github.com/aryan0dhankhar/stratahub/internal/security/middleware"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, security.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPartialFailure):
		return http.StatusMultiStatus
	case errors.Is(err, domain.ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	writeJSON(w, status, resp)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("", "request body required")
		}
		return domain.NewValidationError("", "invalid JSON: "+err.Error())
	}
	return nil
}

// actor resolves the caller for a tenant-scoped route and checks perm.
func actor(r *http.Request, authz *security.AuthorizationService, perm security.Permission) (*auth.Claims, error) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return nil, security.ErrForbidden
	}
	if err := authz.ValidateTenantAccess(claims.TenantID, r.PathValue("tenantId")); err != nil {
		return nil, err
	}
	if err := authz.ValidatePermission(claims.Role, perm); err != nil {
		return nil, err
	}
	return claims, nil
}

// transitionBody is the payload of every status change route
type transitionBody struct {
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	Force          bool   `json:"force,omitempty"`
	ExpectRevision int64  `json:"expectRevision,omitempty"`
}
