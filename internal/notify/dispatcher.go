package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/featureflags"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
	"github.com/aryan0dhankhar/stratahub/pkg/cache"
)

const lookupTTL = 5 * time.Minute

// Config tunes the dispatcher
type Config struct {
	Workers int
	// Enabled reports whether email is switched on. Nil reads the
	// email_dispatch feature flag.
	Enabled func() bool
}

// Dispatcher emails stored notifications from a pool of workers. Enqueue
// records a pending outbox entry and hands the job to the queue; workers
// resolve the recipient and tenant name, call the sender and record the
// outcome in the outbox.
type Dispatcher struct {
	set     *repository.Set
	queue   Queue
	sender  Sender
	logger  *slog.Logger
	workers int
	enabled func() bool
	now     func() time.Time

	recipients *cache.Cache[domain.User]
	tenants    *cache.Cache[string]
}

// NewDispatcher creates a dispatcher
func NewDispatcher(set *repository.Set, queue Queue, sender Sender, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Enabled == nil {
		cfg.Enabled = func() bool { return featureflags.Enabled(featureflags.EmailDispatch) }
	}
	return &Dispatcher{
		set:        set,
		queue:      queue,
		sender:     sender,
		logger:     logger,
		workers:    cfg.Workers,
		enabled:    cfg.Enabled,
		now:        time.Now,
		recipients: cache.New[domain.User](),
		tenants:    cache.New[string](),
	}
}

// Enqueue schedules an email for n. It never blocks on delivery and never
// returns an error: a failure to queue is logged and left in the outbox as
// failed for the outbox worker to retry.
func (d *Dispatcher) Enqueue(ctx context.Context, n domain.Notification) {
	logger := d.logger.With(slog.String("notification_id", n.ID), slog.String("tenant_id", n.TenantID))

	_, err := d.set.Outbox.Create(ctx, domain.OutboxEntry{
		Meta:           domain.Meta{ID: n.ID, TenantID: n.TenantID},
		NotificationID: n.ID,
		UserID:         n.UserID,
		Status:         domain.OutboxPending,
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		logger.Error("failed to record outbox entry", slog.String("error", err.Error()))
	}

	if err := d.Push(ctx, n.ID, n.TenantID); err != nil {
		logger.Error("failed to queue notification email", slog.String("error", err.Error()))
		d.record(ctx, n.ID, func(e *domain.OutboxEntry) {
			e.Status = domain.OutboxFailed
			e.LastError = err.Error()
		})
		metrics.ObserveDispatch("queue_failed")
	}
}

// Push queues a job for a notification that already has an outbox entry.
func (d *Dispatcher) Push(ctx context.Context, notificationID, tenantID string) error {
	return d.queue.Push(ctx, Job{NotificationID: notificationID, TenantID: tenantID, QueuedAt: d.now().UTC()})
}

// Start runs the worker pool until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started", slog.Int("workers", d.workers))
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for {
		job, err := d.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("failed to take job", slog.Int("worker", worker), slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		d.handle(ctx, job)
	}
}

// handle delivers one job. It is safe to run twice for the same
// notification: a sent entry is not sent again.
func (d *Dispatcher) handle(ctx context.Context, job Job) {
	logger := d.logger.With(slog.String("notification_id", job.NotificationID), slog.String("tenant_id", job.TenantID))

	entry, ok, err := d.set.Outbox.Get(ctx, job.NotificationID)
	if err != nil {
		logger.Error("failed to load outbox entry", slog.String("error", err.Error()))
		return
	}
	if ok && entry.Status == domain.OutboxSent {
		logger.Debug("notification already emailed")
		return
	}

	n, found, err := d.set.Notifications.Get(ctx, job.NotificationID)
	if err != nil {
		d.fail(ctx, logger, job.NotificationID, err)
		return
	}
	if !found {
		d.skip(ctx, logger, job.NotificationID, "notification no longer exists")
		return
	}
	if !d.enabled() {
		d.skip(ctx, logger, n.ID, "email dispatch disabled")
		return
	}

	payload, err := d.payload(ctx, n)
	if err != nil {
		if errors.Is(err, errNoAddress) {
			d.skip(ctx, logger, n.ID, err.Error())
			return
		}
		d.fail(ctx, logger, n.ID, err)
		return
	}

	if err := d.sender.Send(ctx, payload); err != nil {
		d.fail(ctx, logger, n.ID, err)
		return
	}
	now := d.now().UTC()
	d.record(ctx, n.ID, func(e *domain.OutboxEntry) {
		e.Status = domain.OutboxSent
		e.Attempts++
		e.LastError = ""
		e.Recipient = payload.To
		e.SentAt = &now
	})
	metrics.ObserveDispatch("sent")
	logger.Debug("notification emailed", slog.String("to", payload.To))
}

var (
	errNoAddress = errors.New("recipient has no email address")
	errNoTenant  = errors.New("tenant not found")
)

// payload resolves the recipient and tenant name. Only found records are
// cached, so an account created after a miss is picked up on the next job.
func (d *Dispatcher) payload(ctx context.Context, n domain.Notification) (EmailPayload, error) {
	user, err := d.recipients.GetOrLoad("user:"+n.UserID, lookupTTL, func() (domain.User, error) {
		u, ok, err := d.set.Users.Get(ctx, n.UserID)
		if err != nil {
			return domain.User{}, err
		}
		if !ok || u.Email == "" {
			return domain.User{}, errNoAddress
		}
		return u, nil
	})
	if errors.Is(err, errNoAddress) {
		return EmailPayload{}, err
	}
	if err != nil {
		return EmailPayload{}, fmt.Errorf("resolve recipient: %w", err)
	}

	tenantName, err := d.tenants.GetOrLoad("tenant:"+n.TenantID, lookupTTL, func() (string, error) {
		t, ok, err := d.set.Tenants.Get(ctx, n.TenantID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errNoTenant
		}
		return t.Name, nil
	})
	if err != nil && !errors.Is(err, errNoTenant) {
		return EmailPayload{}, fmt.Errorf("resolve tenant: %w", err)
	}

	subject := n.Title
	if tenantName != "" {
		subject = fmt.Sprintf("[%s] %s", tenantName, n.Title)
	}
	return EmailPayload{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		TenantName:     tenantName,
		To:             user.Email,
		ToName:         user.DisplayName,
		Subject:        subject,
		Text:           n.Message,
		Type:           n.Type,
		Metadata:       n.Data,
	}, nil
}

func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, id string, err error) {
	logger.Error("failed to email notification", slog.String("error", err.Error()))
	d.record(ctx, id, func(e *domain.OutboxEntry) {
		e.Status = domain.OutboxFailed
		e.Attempts++
		e.LastError = err.Error()
	})
	metrics.ObserveDispatch("failed")
}

func (d *Dispatcher) skip(ctx context.Context, logger *slog.Logger, id, reason string) {
	logger.Info("notification email skipped", slog.String("reason", reason))
	d.record(ctx, id, func(e *domain.OutboxEntry) {
		e.Status = domain.OutboxSkipped
		e.LastError = reason
	})
	metrics.ObserveDispatch("skipped")
}

func (d *Dispatcher) record(ctx context.Context, id string, mutate func(*domain.OutboxEntry)) {
	_, err := d.set.Outbox.Update(ctx, id, func(e *domain.OutboxEntry) error {
		mutate(e)
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		d.logger.Error("failed to update outbox entry",
			slog.String("notification_id", id),
			slog.String("error", err.Error()),
		)
	}
}
