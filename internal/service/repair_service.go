package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/lifecycle"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
)

// RepairRequestService handles repair request submission, lookup and
// status changes.
type RepairRequestService struct {
	set           *repository.Set
	engine        *lifecycle.Engine
	notifications *NotificationService
	logger        *slog.Logger
	now           func() time.Time
}

// Submission captures a new repair request
type Submission struct {
	TenantID       string
	Title          string
	Description    string
	Area           string
	Severity       string
	EstimatedCost  decimal.NullDecimal
	SubmittedBy    string
	SubmitterName  string
	SubmitterEmail string
	SubmitterUnit  string
}

// NewRepairRequestService creates a repair request service
func NewRepairRequestService(
	set *repository.Set,
	engine *lifecycle.Engine,
	notifications *NotificationService,
	logger *slog.Logger,
) *RepairRequestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepairRequestService{
		set:           set,
		engine:        engine,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// Submit stores a new request in the suggested status, with the submitter
// as author of the first history entry, and alerts the administrators.
func (s *RepairRequestService) Submit(ctx context.Context, in Submission) (domain.RepairRequest, error) {
	severity := in.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	req, err := s.set.RepairRequests.Create(ctx, domain.RepairRequest{
		Meta:           domain.Meta{TenantID: in.TenantID},
		Title:          in.Title,
		Description:    in.Description,
		Area:           in.Area,
		Severity:       severity,
		EstimatedCost:  in.EstimatedCost,
		SubmittedBy:    in.SubmittedBy,
		SubmitterName:  in.SubmitterName,
		SubmitterEmail: in.SubmitterEmail,
		SubmitterUnit:  in.SubmitterUnit,
		Status:         domain.RequestSuggested,
		StatusHistory: domain.NewStatusLog(domain.StatusEntry{
			Status:    domain.RequestSuggested,
			ChangedBy: in.SubmittedBy,
			ChangedAt: s.now().UTC(),
		}),
	})
	if err != nil {
		return domain.RepairRequest{}, err
	}
	s.logger.Info("repair request submitted",
		slog.String("tenant_id", req.TenantID),
		slog.String("id", req.ID),
		slog.String("severity", req.Severity),
	)

	if s.notifications != nil {
		_, err := s.notifications.NotifyAdministrators(ctx, req.TenantID, req.SubmittedBy, domain.Notification{
			Type:    domain.NotificationRepairRequest,
			Title:   "New repair request",
			Message: fmt.Sprintf("%s reported: %s", submitterLabel(req), req.Title),
			Data: map[string]any{
				"repairRequestId": req.ID,
				"severity":        req.Severity,
			},
		})
		if err != nil {
			s.logger.Error("failed to notify administrators",
				slog.String("tenant_id", req.TenantID),
				slog.String("id", req.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return req, nil
}

// Get returns the tenant's repair request. A request of another tenant is
// reported as not found.
func (s *RepairRequestService) Get(ctx context.Context, tenantID, id string) (domain.RepairRequest, error) {
	req, ok, err := s.set.RepairRequests.Get(ctx, id)
	if err != nil {
		return domain.RepairRequest{}, err
	}
	if !ok || req.TenantID != tenantID {
		return domain.RepairRequest{}, &domain.NotFoundError{Kind: "repair request", ID: id}
	}
	return req, nil
}

// List returns the tenant's requests newest first, optionally narrowed to
// one status.
func (s *RepairRequestService) List(ctx context.Context, tenantID, status string) ([]domain.RepairRequest, error) {
	var filters []docstore.Filter
	if status != "" {
		filters = append(filters, docstore.Eq("status", status))
	}
	return s.set.RepairRequests.ListByTenant(ctx, tenantID, filters...)
}

// Transition applies t and tells the submitter about the new status when
// someone else made the change.
func (s *RepairRequestService) Transition(ctx context.Context, t lifecycle.Transition) (domain.RepairRequest, error) {
	out, err := s.engine.TransitionRepairRequest(ctx, t)
	if err != nil {
		return out, err
	}
	if s.notifications != nil && out.SubmittedBy != "" && out.SubmittedBy != t.ActorID {
		_, err := s.notifications.Create(ctx, domain.Notification{
			Meta:    domain.Meta{TenantID: out.TenantID},
			UserID:  out.SubmittedBy,
			Type:    domain.NotificationStatusChanged,
			Title:   "Repair request " + out.Status,
			Message: fmt.Sprintf("%q is now %s", out.Title, out.Status),
			Data: map[string]any{
				"repairRequestId": out.ID,
				"status":          out.Status,
			},
		})
		if err != nil {
			s.logger.Error("failed to notify submitter",
				slog.String("tenant_id", out.TenantID),
				slog.String("id", out.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return out, nil
}

func submitterLabel(r domain.RepairRequest) string {
	switch {
	case r.SubmitterName != "" && r.SubmitterUnit != "":
		return fmt.Sprintf("%s (unit %s)", r.SubmitterName, r.SubmitterUnit)
	case r.SubmitterName != "":
		return r.SubmitterName
	}
	return "An owner"
}
