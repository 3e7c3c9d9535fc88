package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
)

// Requeuer puts a notification back on the dispatch queue.
type Requeuer interface {
	Push(ctx context.Context, notificationID, tenantID string) error
}

// DefaultStaleAfter is how long an entry may sit pending before its job is
// presumed lost.
const DefaultStaleAfter = 15 * time.Minute

// OutboxWorker periodically re-queues failed notification emails, and pending
// ones whose job was lost, until they run out of attempts.
type OutboxWorker struct {
	outbox      *repository.Repository[domain.OutboxEntry]
	requeuer    Requeuer
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int
	staleAfter  time.Duration
	now         func() time.Time
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(
	outbox *repository.Repository[domain.OutboxEntry],
	requeuer Requeuer,
	logger *slog.Logger,
	interval time.Duration,
	maxAttempts int,
) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OutboxWorker{
		outbox:      outbox,
		requeuer:    requeuer,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		staleAfter:  DefaultStaleAfter,
		now:         time.Now,
	}
}

// WithStaleAfter sets how old a pending entry must be to be re-queued.
func (w *OutboxWorker) WithStaleAfter(d time.Duration) *OutboxWorker {
	if d > 0 {
		w.staleAfter = d
	}
	return w
}

// WithClock replaces the worker's clock.
func (w *OutboxWorker) WithClock(now func() time.Time) *OutboxWorker {
	w.now = now
	return w
}

// Start begins the worker loop and returns when ctx is cancelled.
func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started",
		slog.Duration("interval", w.interval),
		slog.Int("max_attempts", w.maxAttempts),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce re-queues every failed entry with attempts left, and every pending
// entry untouched for longer than the stale threshold, then updates the
// outbox depth gauge. It returns how many entries were re-queued.
func (w *OutboxWorker) RunOnce(ctx context.Context) int {
	failed, err := w.outbox.List(ctx, docstore.Eq("status", domain.OutboxFailed))
	if err != nil {
		w.logger.Error("failed to list outbox", slog.String("error", err.Error()))
		return 0
	}
	pending, err := w.outbox.List(ctx, docstore.Eq("status", domain.OutboxPending))
	if err != nil {
		w.logger.Error("failed to list outbox", slog.String("error", err.Error()))
		return 0
	}

	cutoff := w.now().Add(-w.staleAfter)
	candidates := failed
	for _, e := range pending {
		if e.UpdatedAt.Before(cutoff) {
			candidates = append(candidates, e)
		}
	}

	requeued := 0
	exhausted := 0
	for _, e := range candidates {
		if e.Attempts >= w.maxAttempts {
			exhausted++
			continue
		}
		if w.requeue(ctx, e) {
			requeued++
		}
	}

	metrics.SetOutboxDepth(len(pending) + len(failed) - exhausted)
	if requeued > 0 || exhausted > 0 {
		w.logger.Info("outbox pass complete",
			slog.Int("requeued", requeued),
			slog.Int("exhausted", exhausted),
		)
	}
	return requeued
}

func (w *OutboxWorker) requeue(ctx context.Context, e domain.OutboxEntry) bool {
	logger := w.logger.With(
		slog.String("notification_id", e.ID),
		slog.String("tenant_id", e.TenantID),
		slog.String("status", e.Status),
	)

	// mark first so a concurrent run does not queue the same entry twice; the
	// write also restarts the stale clock of a pending entry
	_, err := w.outbox.Update(ctx, e.ID, func(o *domain.OutboxEntry) error {
		o.Status = domain.OutboxPending
		return nil
	})
	if err != nil {
		logger.Warn("skipping outbox entry", slog.String("error", err.Error()))
		return false
	}
	if err := w.requeuer.Push(ctx, e.ID, e.TenantID); err != nil {
		logger.Error("failed to re-queue email", slog.String("error", err.Error()))
		_, _ = w.outbox.Update(ctx, e.ID, func(o *domain.OutboxEntry) error {
			o.Status = domain.OutboxFailed
			o.LastError = err.Error()
			return nil
		})
		return false
	}
	logger.Debug("email re-queued", slog.Int("attempts", e.Attempts))
	return true
}
