package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/aryan0dhankhar/stratahub/internal/lifecycle"
	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

// RepairRequestHandler serves /api/tenants/{tenantId}/repair-requests
type RepairRequestHandler struct {
	requests   *service.RepairRequestService
	conversion *service.ConversionService
	authz      *security.AuthorizationService
	logger     *slog.Logger
}

// NewRepairRequestHandler creates a repair request handler
func NewRepairRequestHandler(
	requests *service.RepairRequestService,
	conversion *service.ConversionService,
	authz *security.AuthorizationService,
	logger *slog.Logger,
) *RepairRequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepairRequestHandler{requests: requests, conversion: conversion, authz: authz, logger: logger}
}

// Register adds the handler's routes to mux
func (h *RepairRequestHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tenants/{tenantId}/repair-requests", h.Submit)
	mux.HandleFunc("GET /api/tenants/{tenantId}/repair-requests", h.List)
	mux.HandleFunc("GET /api/tenants/{tenantId}/repair-requests/{id}", h.Get)
	mux.HandleFunc("POST /api/tenants/{tenantId}/repair-requests/{id}/transition", h.Transition)
	mux.HandleFunc("POST /api/tenants/{tenantId}/repair-requests/{id}/convert", h.Convert)
}

type submitBody struct {
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Area          string              `json:"area"`
	Severity      string              `json:"severity"`
	EstimatedCost decimal.NullDecimal `json:"estimatedCost"`
	SubmitterName string              `json:"submitterName"`
	SubmitterUnit string              `json:"submitterUnit"`
}

// Submit handles POST .../repair-requests
func (h *RepairRequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermSubmitRequest)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var body submitBody
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	req, err := h.requests.Submit(r.Context(), service.Submission{
		TenantID:       claims.TenantID,
		Title:          body.Title,
		Description:    body.Description,
		Area:           body.Area,
		Severity:       body.Severity,
		EstimatedCost:  body.EstimatedCost,
		SubmittedBy:    claims.UserID,
		SubmitterName:  body.SubmitterName,
		SubmitterEmail: claims.Email,
		SubmitterUnit:  body.SubmitterUnit,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// List handles GET .../repair-requests?status=
func (h *RepairRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadTenant)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	reqs, err := h.requests.List(r.Context(), claims.TenantID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// Get handles GET .../repair-requests/{id}
func (h *RepairRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadTenant)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	req, err := h.requests.Get(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Transition handles POST .../repair-requests/{id}/transition
func (h *RepairRequestHandler) Transition(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageRequests)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var body transitionBody
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	req, err := h.requests.Transition(r.Context(), lifecycle.Transition{
		ID:             r.PathValue("id"),
		TenantID:       claims.TenantID,
		NewStatus:      body.Status,
		ActorID:        claims.UserID,
		Reason:         body.Reason,
		Force:          body.Force,
		ExpectRevision: body.ExpectRevision,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Convert handles POST .../repair-requests/{id}/convert
func (h *RepairRequestHandler) Convert(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermConvertRequest)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	out, err := h.conversion.Convert(r.Context(), claims.TenantID, r.PathValue("id"), claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
