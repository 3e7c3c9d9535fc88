// Package lifecycle moves repair requests and maintenance projects between
// statuses, appending one history entry per successful transition.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/observability/tracing"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
	"github.com/aryan0dhankhar/stratahub/internal/security/audit"
)

// Transition is a request to move a record to NewStatus.
type Transition struct {
	ID        string
	TenantID  string // when set, a record of another tenant is reported as not found
	NewStatus string
	ActorID   string
	Reason    string
	// Force records a same-status transition as a no-op history entry
	// instead of rejecting it.
	Force bool
	// ExpectRevision, when non-zero, must match the stored revision.
	ExpectRevision int64
}

// Engine applies transitions. Every write is conditional on the revision it
// read, so of two racing transitions on one record the loser gets a
// ConflictError.
type Engine struct {
	requests *repository.Repository[domain.RepairRequest]
	projects *repository.Repository[domain.MaintenanceProject]
	audit    *audit.Logger
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a lifecycle engine.
func NewEngine(
	requests *repository.Repository[domain.RepairRequest],
	projects *repository.Repository[domain.MaintenanceProject],
	auditLogger *audit.Logger,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		requests: requests,
		projects: projects,
		audit:    auditLogger,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for history entries and side fields.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// TransitionRepairRequest moves a repair request to t.NewStatus.
// Approving stamps approvedBy/approvedAt, rejecting requires a reason and
// stamps rejectedBy/rejectedAt, completing stamps completedDate.
func (e *Engine) TransitionRepairRequest(ctx context.Context, t Transition) (domain.RepairRequest, error) {
	return e.TransitionRepairRequestWith(ctx, t, nil)
}

// TransitionRepairRequestWith is TransitionRepairRequest with extra field
// changes written in the same conditional update as the history entry.
func (e *Engine) TransitionRepairRequestWith(ctx context.Context, t Transition, extra func(*domain.RepairRequest)) (out domain.RepairRequest, err error) {
	ctx, span := tracing.Start(ctx, "lifecycle.TransitionRepairRequest",
		"repair_request.id", t.ID, "status", t.NewStatus)
	defer func() {
		metrics.ObserveTransition("repair_request", t.NewStatus, err)
		e.audit.LogTransition(ctx, tenantOf(out.TenantID, t.TenantID), t.ActorID, "repair_request", t.ID, t.NewStatus, err)
		tracing.End(span, err)
	}()

	current, err := e.loadRequest(ctx, t)
	if err != nil {
		return domain.RepairRequest{}, err
	}
	entry, err := e.check(repairRequestMachine, t, current.ID, current.Status)
	if err != nil {
		return current, err
	}

	now := entry.ChangedAt
	out, err = e.requests.AppendHistory(ctx, current.ID, revision(t, current.Revision), entry, func(r *domain.RepairRequest) error {
		if r.Status == t.NewStatus {
			return nil
		}
		r.Status = t.NewStatus
		switch t.NewStatus {
		case domain.RequestApproved:
			r.ApprovedBy = t.ActorID
			r.ApprovedAt = &now
		case domain.RequestRejected:
			r.RejectedBy = t.ActorID
			r.RejectedAt = &now
			r.RejectionReason = entry.Reason
		case domain.RequestCompleted:
			r.CompletedDate = &now
		}
		if extra != nil {
			extra(r)
		}
		return nil
	})
	if err != nil {
		return current, fmt.Errorf("transition repair request %s: %w", current.ID, err)
	}
	e.logger.Info("repair request transitioned",
		slog.String("tenant_id", out.TenantID),
		slog.String("id", out.ID),
		slog.String("from", current.Status),
		slog.String("to", out.Status),
		slog.String("actor_id", t.ActorID),
	)
	return out, nil
}

// TransitionProject moves a maintenance project to t.NewStatus. Completing
// stamps completedDate. Archiving is separate and does not change status.
func (e *Engine) TransitionProject(ctx context.Context, t Transition) (out domain.MaintenanceProject, err error) {
	ctx, span := tracing.Start(ctx, "lifecycle.TransitionProject",
		"project.id", t.ID, "status", t.NewStatus)
	defer func() {
		metrics.ObserveTransition("maintenance_project", t.NewStatus, err)
		e.audit.LogTransition(ctx, tenantOf(out.TenantID, t.TenantID), t.ActorID, "maintenance_project", t.ID, t.NewStatus, err)
		tracing.End(span, err)
	}()

	current, err := e.loadProject(ctx, t.TenantID, t.ID)
	if err != nil {
		return domain.MaintenanceProject{}, err
	}
	entry, err := e.check(projectMachine, t, current.ID, current.Status)
	if err != nil {
		return current, err
	}

	now := entry.ChangedAt
	out, err = e.projects.AppendHistory(ctx, current.ID, revision(t, current.Revision), entry, func(p *domain.MaintenanceProject) error {
		if p.Status == t.NewStatus {
			return nil
		}
		p.Status = t.NewStatus
		if t.NewStatus == domain.ProjectCompleted {
			p.CompletedDate = &now
		}
		return nil
	})
	if err != nil {
		return current, fmt.Errorf("transition project %s: %w", current.ID, err)
	}
	e.logger.Info("maintenance project transitioned",
		slog.String("tenant_id", out.TenantID),
		slog.String("id", out.ID),
		slog.String("from", current.Status),
		slog.String("to", out.Status),
		slog.String("actor_id", t.ActorID),
	)
	return out, nil
}

// ArchiveProject hides a completed or cancelled project from default views.
func (e *Engine) ArchiveProject(ctx context.Context, tenantID, id, actorID string) (domain.MaintenanceProject, error) {
	current, err := e.loadProject(ctx, tenantID, id)
	if err != nil {
		return domain.MaintenanceProject{}, err
	}
	if current.Archived {
		return current, domain.NewConflictError(projectMachine.kind, id, "already archived")
	}
	if !projectMachine.isTerminal(current.Status) {
		return current, domain.NewConflictError(projectMachine.kind, id,
			fmt.Sprintf("only completed or cancelled projects can be archived, status is %s", current.Status))
	}
	now := e.now().UTC()
	out, err := e.projects.Update(ctx, id, func(p *domain.MaintenanceProject) error {
		p.Archived = true
		p.ArchivedAt = &now
		p.ArchivedBy = actorID
		return nil
	})
	e.audit.LogAction(ctx, current.TenantID, actorID, "archive", "maintenance_project", id, outcomeOf(err), "")
	if err != nil {
		return current, fmt.Errorf("archive project %s: %w", id, err)
	}
	return out, nil
}

// UnarchiveProject makes an archived project visible again. Status is kept.
func (e *Engine) UnarchiveProject(ctx context.Context, tenantID, id, actorID string) (domain.MaintenanceProject, error) {
	current, err := e.loadProject(ctx, tenantID, id)
	if err != nil {
		return domain.MaintenanceProject{}, err
	}
	if !current.Archived {
		return current, domain.NewConflictError(projectMachine.kind, id, "not archived")
	}
	out, err := e.projects.Update(ctx, id, func(p *domain.MaintenanceProject) error {
		p.Archived = false
		p.ArchivedAt = nil
		p.ArchivedBy = ""
		return nil
	})
	e.audit.LogAction(ctx, current.TenantID, actorID, "unarchive", "maintenance_project", id, outcomeOf(err), "")
	if err != nil {
		return current, fmt.Errorf("unarchive project %s: %w", id, err)
	}
	return out, nil
}

// check validates t against m and builds the history entry to append.
func (e *Engine) check(m machine, t Transition, id, from string) (domain.StatusEntry, error) {
	if t.ActorID == "" {
		return domain.StatusEntry{}, domain.NewValidationError("actorId", "is required")
	}
	if !m.known(t.NewStatus) {
		return domain.StatusEntry{}, domain.NewValidationError("newStatus", fmt.Sprintf("unknown %s status %q", m.kind, t.NewStatus))
	}
	reason := strings.TrimSpace(t.Reason)
	switch {
	case from == t.NewStatus:
		if !t.Force {
			return domain.StatusEntry{}, domain.NewConflictError(m.kind, id, "already "+from)
		}
	case !m.allowed(from, t.NewStatus):
		return domain.StatusEntry{}, domain.NewConflictError(m.kind, id,
			fmt.Sprintf("cannot move from %s to %s", from, t.NewStatus))
	case t.NewStatus == domain.RequestRejected && reason == "":
		return domain.StatusEntry{}, domain.NewValidationError("reason", "is required when rejecting")
	}
	return domain.StatusEntry{
		Status:    t.NewStatus,
		ChangedBy: t.ActorID,
		ChangedAt: e.now().UTC(),
		Reason:    reason,
	}, nil
}

func (e *Engine) loadRequest(ctx context.Context, t Transition) (domain.RepairRequest, error) {
	rec, ok, err := e.requests.Get(ctx, t.ID)
	if err != nil {
		return domain.RepairRequest{}, err
	}
	if !ok || (t.TenantID != "" && rec.TenantID != t.TenantID) {
		return domain.RepairRequest{}, &domain.NotFoundError{Kind: repairRequestMachine.kind, ID: t.ID}
	}
	return rec, nil
}

func (e *Engine) loadProject(ctx context.Context, tenantID, id string) (domain.MaintenanceProject, error) {
	rec, ok, err := e.projects.Get(ctx, id)
	if err != nil {
		return domain.MaintenanceProject{}, err
	}
	if !ok || (tenantID != "" && rec.TenantID != tenantID) {
		return domain.MaintenanceProject{}, &domain.NotFoundError{Kind: projectMachine.kind, ID: id}
	}
	return rec, nil
}

func revision(t Transition, current int64) int64 {
	if t.ExpectRevision != 0 {
		return t.ExpectRevision
	}
	return current
}

func tenantOf(recorded, requested string) string {
	if recorded != "" {
		return recorded
	}
	return requested
}

func outcomeOf(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
