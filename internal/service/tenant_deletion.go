package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/observability/tracing"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
	"github.com/aryan0dhankhar/stratahub/internal/security/audit"
)

// Purger removes stored blobs under a key prefix and reports how many were
// removed.
type Purger interface {
	PurgePrefix(ctx context.Context, prefix string) (int, error)
}

// BlobPrefix is where a tenant's document blobs live.
func BlobPrefix(tenantID string) string {
	return "strata/" + tenantID + "/"
}

// DeletionReport summarises a tenant deletion. Deleted counts only records
// in committed batches.
type DeletionReport struct {
	TenantID       string         `json:"tenantId"`
	TenantFound    bool           `json:"tenantFound"`
	Deleted        map[string]int `json:"deleted"`
	Total          int            `json:"total"`
	Chunks         int            `json:"chunks"`
	Committed      int            `json:"committedChunks"`
	BlobsPurged    int            `json:"blobsPurged"`
	BlobPurgeError string         `json:"blobPurgeError,omitempty"`
}

// TenantDeletionService removes a tenant and everything it owns.
type TenantDeletionService struct {
	set    *repository.Set
	purger Purger
	audit  *audit.Logger
	logger *slog.Logger
}

// NewTenantDeletionService creates a tenant deletion service. A nil purger
// leaves blobs in place.
func NewTenantDeletionService(set *repository.Set, purger Purger, auditLogger *audit.Logger, logger *slog.Logger) *TenantDeletionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantDeletionService{set: set, purger: purger, audit: auditLogger, logger: logger}
}

type target struct {
	key        string // report key
	collection string
	id         string
}

// DeleteTenant deletes every record of every kind in domain.TenantDependents
// that belongs to tenantID, then the tenant itself. Writes are committed in
// batches no larger than the store allows; each batch is atomic but the
// batches together are not. When a later batch fails the error is a
// PartialFailureError and running DeleteTenant again finishes the job.
//
// A missing tenant with no remaining dependents is a NotFoundError; a
// missing tenant with leftovers is swept anyway.
func (s *TenantDeletionService) DeleteTenant(ctx context.Context, tenantID, actorID string) (report *DeletionReport, err error) {
	ctx, span := tracing.Start(ctx, "service.DeleteTenant", "tenant.id", tenantID)
	report = &DeletionReport{TenantID: tenantID, Deleted: map[string]int{}}
	defer func() {
		result := deletionResult(err)
		metrics.ObserveTenantDeletion(result, report.Deleted)
		s.audit.LogTenantDeletion(ctx, tenantID, actorID, result,
			fmt.Sprintf("deleted=%d chunks=%d/%d", report.Total, report.Committed, report.Chunks))
		tracing.End(span, err)
	}()

	if strings.TrimSpace(tenantID) == "" {
		return report, domain.NewValidationError("tenantId", "is required")
	}
	logger := s.logger.With(slog.String("tenant_id", tenantID))

	_, found, err := s.set.Tenants.Get(ctx, tenantID)
	if err != nil {
		return report, err
	}
	report.TenantFound = found

	targets, err := s.collect(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("enumerate tenant %s: %w", tenantID, err)
	}
	if !found && len(targets) == 0 {
		return report, &domain.NotFoundError{Kind: "tenant", ID: tenantID}
	}
	if found {
		targets = append(targets, target{key: domain.CollectionTenants, collection: domain.CollectionTenants, id: tenantID})
	} else {
		logger.Warn("tenant record missing, sweeping leftover records", slog.Int("records", len(targets)))
	}

	size := s.set.Store.MaxBatchSize()
	if size <= 0 {
		size = docstore.DefaultMaxBatchSize
	}
	chunks := chunk(targets, size)
	report.Chunks = len(chunks)

	for i, c := range chunks {
		var batch docstore.Batch
		for _, t := range c {
			batch.Delete(t.collection, t.id)
		}
		if err := s.set.Commit(ctx, batch); err != nil {
			logger.Error("tenant deletion chunk failed",
				slog.Int("chunk", i+1),
				slog.Int("chunks", len(chunks)),
				slog.String("error", err.Error()),
			)
			if report.Committed == 0 {
				return report, fmt.Errorf("delete tenant %s: %w", tenantID, err)
			}
			return report, &domain.PartialFailureError{
				TenantID:        tenantID,
				CommittedChunks: report.Committed,
				TotalChunks:     report.Chunks,
				Deleted:         report.Total,
				Err:             err,
			}
		}
		for _, t := range c {
			report.Deleted[t.key]++
		}
		report.Total += len(c)
		report.Committed++
		logger.Debug("tenant deletion chunk committed", slog.Int("chunk", i+1), slog.Int("records", len(c)))
	}

	if s.purger != nil {
		n, perr := s.purger.PurgePrefix(ctx, BlobPrefix(tenantID))
		report.BlobsPurged = n
		if perr != nil {
			report.BlobPurgeError = perr.Error()
			logger.Error("failed to purge tenant blobs", slog.String("error", perr.Error()))
		}
	}

	logger.Info("tenant deleted",
		slog.Int("records", report.Total),
		slog.Int("chunks", report.Chunks),
		slog.Int("blobs", report.BlobsPurged),
	)
	return report, nil
}

// collect lists every dependent record of the tenant, sub-collection
// entries ahead of their parents so an interrupted run never strands them.
func (s *TenantDeletionService) collect(ctx context.Context, tenantID string) ([]target, error) {
	var children, parents []target
	for _, dep := range domain.TenantDependents {
		ids, err := s.set.IDs(ctx, dep.Collection, docstore.Eq(dep.ForeignKey, tenantID))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			for _, child := range dep.Children {
				path := domain.SubcollectionPath(dep.Collection, id, child)
				childIDs, err := s.set.IDs(ctx, path)
				if err != nil {
					return nil, err
				}
				for _, cid := range childIDs {
					children = append(children, target{key: dep.Collection + "/" + child, collection: path, id: cid})
				}
			}
			parents = append(parents, target{key: dep.Collection, collection: dep.Collection, id: id})
		}
	}
	return append(children, parents...), nil
}

func chunk(targets []target, size int) [][]target {
	var out [][]target
	for len(targets) > size {
		out = append(out, targets[:size])
		targets = targets[size:]
	}
	if len(targets) > 0 {
		out = append(out, targets)
	}
	return out
}

func deletionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrPartialFailure):
		return "partial"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "failed"
}
