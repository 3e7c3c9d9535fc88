package domain

import "time"

// Notification types
const (
	NotificationRepairRequest    = "repair_request"
	NotificationRequestConverted = "request_converted"
	NotificationStatusChanged    = "status_changed"
	NotificationAnnouncement     = "announcement"
	NotificationMeeting          = "meeting"
	NotificationPaymentReminder  = "payment_reminder"
	NotificationGeneral          = "general"
)

// Notification is an in-app alert for a single recipient. Only the
// recipient may mark it read or dismissed.
type Notification struct {
	Meta
	UserID      string         `json:"userId" validate:"required"`
	Type        string         `json:"type" validate:"required"`
	Title       string         `json:"title" validate:"required"`
	Message     string         `json:"message,omitempty"`
	Data        map[string]any `json:"metadata,omitempty"`
	IsRead      bool           `json:"isRead"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	Dismissed   bool           `json:"dismissed"`
	DismissedAt *time.Time     `json:"dismissedAt,omitempty"`
}

// DismissedNotification records that a user dismissed a notification.
type DismissedNotification struct {
	Meta
	UserID         string `json:"userId" validate:"required"`
	NotificationID string `json:"notificationId" validate:"required"`
}

// Outbox statuses
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
	OutboxSkipped = "skipped"
)

// OutboxEntry tracks email dispatch for one notification. Its ID is the
// notification ID.
type OutboxEntry struct {
	Meta
	NotificationID string     `json:"notificationId" validate:"required"`
	UserID         string     `json:"userId" validate:"required"`
	Status         string     `json:"status" validate:"required,oneof=pending sent failed skipped"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"lastError,omitempty"`
	Recipient      string     `json:"recipient,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
}
