package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
)

// ProjectService handles maintenance projects created directly by a user.
type ProjectService struct {
	set    *repository.Set
	logger *slog.Logger
	now    func() time.Time
}

// ProjectFilter narrows a project listing
type ProjectFilter struct {
	Status          string
	IncludeArchived bool
}

// NewProjectService creates a project service
func NewProjectService(set *repository.Set, logger *slog.Logger) *ProjectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectService{set: set, logger: logger, now: time.Now}
}

// Create stores p, starting its history at its initial status (planned
// unless given).
func (s *ProjectService) Create(ctx context.Context, p domain.MaintenanceProject, actorID string) (domain.MaintenanceProject, error) {
	if p.Status == "" {
		p.Status = domain.ProjectPlanned
	}
	if p.Category == "" {
		p.Category = domain.CategoryOther
	}
	if p.Priority == "" {
		p.Priority = domain.SeverityMedium
	}
	p.ID = ""
	p.CreatedBy = actorID
	p.Archived = false
	p.ArchivedAt = nil
	p.ArchivedBy = ""
	p.StatusHistory = domain.NewStatusLog(domain.StatusEntry{
		Status:    p.Status,
		ChangedBy: actorID,
		ChangedAt: s.now().UTC(),
	})
	out, err := s.set.Projects.Create(ctx, p)
	if err != nil {
		return domain.MaintenanceProject{}, err
	}
	s.logger.Info("maintenance project created",
		slog.String("tenant_id", out.TenantID),
		slog.String("id", out.ID),
		slog.String("category", out.Category),
	)
	return out, nil
}

// Get returns the tenant's project, archived or not.
func (s *ProjectService) Get(ctx context.Context, tenantID, id string) (domain.MaintenanceProject, error) {
	p, ok, err := s.set.Projects.Get(ctx, id)
	if err != nil {
		return domain.MaintenanceProject{}, err
	}
	if !ok || p.TenantID != tenantID {
		return domain.MaintenanceProject{}, &domain.NotFoundError{Kind: "maintenance project", ID: id}
	}
	return p, nil
}

// List returns the tenant's projects newest first. Archived projects are
// hidden unless f.IncludeArchived is set.
func (s *ProjectService) List(ctx context.Context, tenantID string, f ProjectFilter) ([]domain.MaintenanceProject, error) {
	var filters []docstore.Filter
	if f.Status != "" {
		filters = append(filters, docstore.Eq("status", f.Status))
	}
	return s.set.Projects.Find(ctx, repository.Query[domain.MaintenanceProject]{
		TenantID: tenantID,
		Filters:  filters,
		Where: func(p domain.MaintenanceProject) bool {
			return f.IncludeArchived || !p.Archived
		},
	})
}

// Delete removes the project permanently. Unlike archiving this cannot be
// undone.
func (s *ProjectService) Delete(ctx context.Context, tenantID, id, actorID string) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.set.Projects.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("maintenance project deleted",
		slog.String("tenant_id", tenantID),
		slog.String("id", id),
		slog.String("actor_id", actorID),
	)
	return nil
}
