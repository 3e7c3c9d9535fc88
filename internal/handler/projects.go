package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/lifecycle"
	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

// ProjectHandler serves /api/tenants/{tenantId}/projects
type ProjectHandler struct {
	projects *service.ProjectService
	engine   *lifecycle.Engine
	authz    *security.AuthorizationService
	logger   *slog.Logger
}

// NewProjectHandler creates a project handler
func NewProjectHandler(projects *service.ProjectService, engine *lifecycle.Engine, authz *security.AuthorizationService, logger *slog.Logger) *ProjectHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectHandler{projects: projects, engine: engine, authz: authz, logger: logger}
}

// Register adds the handler's routes to mux
func (h *ProjectHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tenants/{tenantId}/projects", h.Create)
	mux.HandleFunc("GET /api/tenants/{tenantId}/projects", h.List)
	mux.HandleFunc("GET /api/tenants/{tenantId}/projects/{id}", h.Get)
	mux.HandleFunc("POST /api/tenants/{tenantId}/projects/{id}/transition", h.Transition)
	mux.HandleFunc("POST /api/tenants/{tenantId}/projects/{id}/archive", h.Archive)
	mux.HandleFunc("POST /api/tenants/{tenantId}/projects/{id}/unarchive", h.Unarchive)
	mux.HandleFunc("DELETE /api/tenants/{tenantId}/projects/{id}", h.Delete)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageProjects)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var p domain.MaintenanceProject
	if err := decode(r, &p); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p.TenantID = claims.TenantID

	created, err := h.projects.Create(r.Context(), p, claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET .../projects?status=&includeArchived=true
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadTenant)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	q := r.URL.Query()
	includeArchived, _ := strconv.ParseBool(q.Get("includeArchived"))

	projects, err := h.projects.List(r.Context(), claims.TenantID, service.ProjectFilter{
		Status:          q.Get("status"),
		IncludeArchived: includeArchived,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermReadTenant)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.projects.Get(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) Transition(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageProjects)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var body transitionBody
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	p, err := h.engine.TransitionProject(r.Context(), lifecycle.Transition{
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
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) Archive(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageProjects)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.engine.ArchiveProject(r.Context(), claims.TenantID, r.PathValue("id"), claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageProjects)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.engine.UnarchiveProject(r.Context(), claims.TenantID, r.PathValue("id"), claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, err := actor(r, h.authz, security.PermManageProjects)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.projects.Delete(r.Context(), claims.TenantID, r.PathValue("id"), claims.UserID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
