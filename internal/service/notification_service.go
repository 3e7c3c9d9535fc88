package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
)

// Dispatcher hands a stored notification to the email pipeline. Enqueue
// must not block on delivery and reports nothing back to the caller.
type Dispatcher interface {
	Enqueue(ctx context.Context, n domain.Notification)
}

// NotificationService creates in-app notifications and lets their
// recipient read or dismiss them.
type NotificationService struct {
	set        *repository.Set
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewNotificationService creates a notification service. A nil dispatcher
// disables email.
func NewNotificationService(set *repository.Set, dispatcher Dispatcher, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{set: set, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// Create stores n and queues it for email. Dispatch happens after the write
// and cannot fail it.
func (s *NotificationService) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	n.IsRead = false
	n.ReadAt = nil
	n.Dismissed = false
	n.DismissedAt = nil
	out, err := s.set.Notifications.Create(ctx, n)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	if s.dispatcher != nil {
		s.dispatcher.Enqueue(ctx, out)
	}
	return out, nil
}

// NotifyAdministrators sends a copy of tmpl to every administrator of the
// tenant except skipUserID. It returns how many notifications were created;
// the error joins every individual failure.
func (s *NotificationService) NotifyAdministrators(ctx context.Context, tenantID, skipUserID string, tmpl domain.Notification) (int, error) {
	access, err := s.set.Access.ListByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list administrators: %w", err)
	}
	seen := map[string]bool{}
	var errs []error
	created := 0
	for _, a := range access {
		if !domain.IsAdministrator(a.Role) || a.UserID == skipUserID || seen[a.UserID] {
			continue
		}
		seen[a.UserID] = true
		n := tmpl
		n.ID = ""
		n.TenantID = tenantID
		n.UserID = a.UserID
		if _, err := s.Create(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", a.UserID, err))
			continue
		}
		created++
	}
	return created, errors.Join(errs...)
}

// ListForUser returns the user's notifications in the tenant, newest first.
// Dismissed notifications are left out unless includeDismissed is set.
func (s *NotificationService) ListForUser(ctx context.Context, tenantID, userID string, includeDismissed bool) ([]domain.Notification, error) {
	return s.set.Notifications.Find(ctx, repository.Query[domain.Notification]{
		TenantID: tenantID,
		Filters:  []docstore.Filter{docstore.Eq("userId", userID)},
		Where: func(n domain.Notification) bool {
			return includeDismissed || !n.Dismissed
		},
	})
}

// MarkRead marks the notification read. Only its recipient may do so; for
// anyone else the notification does not exist.
func (s *NotificationService) MarkRead(ctx context.Context, tenantID, userID, id string) (domain.Notification, error) {
	current, err := s.load(ctx, tenantID, userID, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if current.IsRead {
		return current, nil
	}
	now := s.now().UTC()
	return s.set.Notifications.Update(ctx, id, func(n *domain.Notification) error {
		n.IsRead = true
		n.ReadAt = &now
		return nil
	})
}

// Dismiss hides the notification from the recipient's default listing and
// records the dismissal. Dismissing twice is a no-op.
func (s *NotificationService) Dismiss(ctx context.Context, tenantID, userID, id string) (domain.Notification, error) {
	current, err := s.load(ctx, tenantID, userID, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if current.Dismissed {
		return current, nil
	}
	now := s.now().UTC()
	out, err := s.set.Notifications.Update(ctx, id, func(n *domain.Notification) error {
		n.Dismissed = true
		n.DismissedAt = &now
		return nil
	})
	if err != nil {
		return domain.Notification{}, err
	}

	_, err = s.set.DismissedNotifications.Create(ctx, domain.DismissedNotification{
		Meta:           domain.Meta{ID: userID + "_" + id, TenantID: current.TenantID},
		UserID:         userID,
		NotificationID: id,
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return out, fmt.Errorf("record dismissal: %w", err)
	}
	return out, nil
}

func (s *NotificationService) load(ctx context.Context, tenantID, userID, id string) (domain.Notification, error) {
	n, ok, err := s.set.Notifications.Get(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if !ok || n.TenantID != tenantID || n.UserID != userID {
		if ok {
			s.logger.Warn("notification access by non-recipient",
				slog.String("id", id),
				slog.String("tenant_id", tenantID),
				slog.String("user_id", userID),
			)
		}
		return domain.Notification{}, &domain.NotFoundError{Kind: "notification", ID: id}
	}
	return n, nil
}
