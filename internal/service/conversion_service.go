package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/lifecycle"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/observability/tracing"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
	"github.com/aryan0dhankhar/stratahub/internal/security/audit"
)

// ConversionService promotes approved repair requests into maintenance
// projects.
type ConversionService struct {
	set           *repository.Set
	engine        *lifecycle.Engine
	notifications *NotificationService
	audit         *audit.Logger
	logger        *slog.Logger
	now           func() time.Time
}

// Conversion is the outcome of a successful conversion
type Conversion struct {
	Request domain.RepairRequest      `json:"request"`
	Project domain.MaintenanceProject `json:"project"`
}

// NewConversionService creates a conversion service
func NewConversionService(
	set *repository.Set,
	engine *lifecycle.Engine,
	notifications *NotificationService,
	auditLogger *audit.Logger,
	logger *slog.Logger,
) *ConversionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversionService{
		set:           set,
		engine:        engine,
		notifications: notifications,
		audit:         auditLogger,
		logger:        logger,
		now:           time.Now,
	}
}

// ProjectIDFor returns the id of the project a request converts into.
// Every conversion of one request targets the same id, so at most one
// create can succeed.
func ProjectIDFor(requestID string) string {
	return "rr-" + requestID
}

// Convert creates a maintenance project from an approved repair request and
// marks the request converted, moving it to planned. A request that is not
// approved, or was already converted, is a ConflictError.
func (s *ConversionService) Convert(ctx context.Context, tenantID, requestID, actorID string) (out Conversion, err error) {
	ctx, span := tracing.Start(ctx, "service.Convert", "repair_request.id", requestID, "tenant.id", tenantID)
	defer func() {
		metrics.ObserveConversion(err)
		s.audit.LogConversion(ctx, tenantID, actorID, requestID, out.Project.ID, err)
		tracing.End(span, err)
	}()

	if actorID == "" {
		return Conversion{}, domain.NewValidationError("actorId", "is required")
	}
	req, ok, err := s.set.RepairRequests.Get(ctx, requestID)
	if err != nil {
		return Conversion{}, err
	}
	if !ok || req.TenantID != tenantID {
		return Conversion{}, &domain.NotFoundError{Kind: "repair request", ID: requestID}
	}
	if req.Converted {
		return Conversion{}, domain.NewConflictError("repair request", requestID,
			"already converted to project "+req.ConvertedProjectID)
	}
	if req.Status != domain.RequestApproved {
		return Conversion{}, domain.NewConflictError("repair request", requestID,
			fmt.Sprintf("cannot convert a request that is not approved (status %s)", req.Status))
	}

	now := s.now().UTC()
	project, err := s.set.Projects.Create(ctx, domain.MaintenanceProject{
		Meta:          domain.Meta{ID: ProjectIDFor(req.ID), TenantID: req.TenantID},
		Title:         req.Title,
		Description:   req.Description,
		Category:      domain.CategoryOther,
		Priority:      domain.PriorityForSeverity(req.Severity),
		Status:        domain.ProjectPlanned,
		EstimatedCost: req.EstimatedCost,
		StatusHistory: domain.NewStatusLog(domain.StatusEntry{
			Status:    domain.ProjectPlanned,
			ChangedBy: actorID,
			ChangedAt: now,
			Reason:    "converted from repair request " + req.ID,
		}),
		SourceRepairRequestID: req.ID,
		CreatedBy:             actorID,
	})
	created := err == nil
	switch {
	case errors.Is(err, domain.ErrConflict):
		// an earlier attempt may have created the project and failed to mark
		// the request; pick that project up instead of refusing forever
		if project, err = s.orphanProject(ctx, req); err != nil {
			return Conversion{}, err
		}
	case err != nil:
		return Conversion{}, fmt.Errorf("create project: %w", err)
	}

	converted, err := s.engine.TransitionRepairRequestWith(ctx, lifecycle.Transition{
		ID:             req.ID,
		TenantID:       tenantID,
		NewStatus:      domain.RequestPlanned,
		ActorID:        actorID,
		Reason:         "converted to maintenance project",
		ExpectRevision: req.Revision,
	}, func(r *domain.RepairRequest) {
		r.Converted = true
		r.ConvertedProjectID = project.ID
		r.ConvertedAt = &now
		r.ConvertedBy = actorID
	})
	if err != nil && created {
		// the request was not marked, so the project must not survive
		if delErr := s.set.Projects.Delete(ctx, project.ID); delErr != nil {
			s.logger.Error("failed to remove project after aborted conversion",
				slog.String("tenant_id", tenantID),
				slog.String("project_id", project.ID),
				slog.String("error", delErr.Error()),
			)
		}
	}
	if err != nil {
		return Conversion{}, fmt.Errorf("mark request converted: %w", err)
	}

	s.logger.Info("repair request converted",
		slog.String("tenant_id", tenantID),
		slog.String("request_id", req.ID),
		slog.String("project_id", project.ID),
		slog.String("actor_id", actorID),
	)

	if s.notifications != nil {
		_, nerr := s.notifications.NotifyAdministrators(ctx, tenantID, actorID, domain.Notification{
			Type:    domain.NotificationRequestConverted,
			Title:   "Repair request converted",
			Message: fmt.Sprintf("%q is now a maintenance project", req.Title),
			Data: map[string]any{
				"repairRequestId": req.ID,
				"projectId":       project.ID,
			},
		})
		if nerr != nil {
			s.logger.Error("failed to notify administrators",
				slog.String("tenant_id", tenantID),
				slog.String("request_id", req.ID),
				slog.String("error", nerr.Error()),
			)
		}
	}
	return Conversion{Request: converted, Project: project}, nil
}

// orphanProject returns the project left by an interrupted conversion of req.
// Any other occupant of the id means the request is already converted.
func (s *ConversionService) orphanProject(ctx context.Context, req domain.RepairRequest) (domain.MaintenanceProject, error) {
	project, ok, err := s.set.Projects.Get(ctx, ProjectIDFor(req.ID))
	if err != nil {
		return domain.MaintenanceProject{}, fmt.Errorf("load project: %w", err)
	}
	if !ok || project.SourceRepairRequestID != req.ID || project.TenantID != req.TenantID {
		return domain.MaintenanceProject{}, domain.NewConflictError("repair request", req.ID, "already converted")
	}
	s.logger.Warn("resuming interrupted conversion",
		slog.String("tenant_id", req.TenantID),
		slog.String("request_id", req.ID),
		slog.String("project_id", project.ID),
	)
	return project, nil
}
