package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/reliability/retry"
)

// Set bundles a repository per record kind over one store.
type Set struct {
	Store docstore.Store

	Tenants              *Repository[domain.Tenant]
	Users                *Repository[domain.User]
	PendingRegistrations *Repository[domain.PendingRegistration]

	Access                 *Repository[domain.UserTenantAccess]
	Units                  *Repository[domain.Unit]
	Expenses               *Repository[domain.Expense]
	Vendors                *Repository[domain.Vendor]
	VendorContracts        *Repository[domain.VendorContract]
	VendorHistory          *Repository[domain.VendorHistory]
	Quotes                 *Repository[domain.Quote]
	Meetings               *Repository[domain.Meeting]
	Documents              *Repository[domain.Document]
	DocumentFolders        *Repository[domain.DocumentFolder]
	RepairRequests         *Repository[domain.RepairRequest]
	Projects               *Repository[domain.MaintenanceProject]
	Announcements          *Repository[domain.Announcement]
	Messages               *Repository[domain.Message]
	Notifications          *Repository[domain.Notification]
	DismissedNotifications *Repository[domain.DismissedNotification]
	Funds                  *Repository[domain.Fund]
	PaymentReminders       *Repository[domain.PaymentReminder]
	Outbox                 *Repository[domain.OutboxEntry]

	opts   []Option
	logger *slog.Logger
	retry  *retry.Config
}

// NewSet wires every repository. readRetries bounds read attempts on
// transport errors.
func NewSet(store docstore.Store, readRetries int, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	base := []Option{WithReadRetries(readRetries), WithLogger(logger)}
	scoped := append([]Option{TenantScoped()}, base...)
	with := func(opts []Option, extra ...Option) []Option {
		return append(append([]Option{}, opts...), extra...)
	}

	return &Set{
		Store: store,

		Tenants:              New[domain.Tenant](store, domain.CollectionTenants, with(base, Kind("tenant"))...),
		Users:                New[domain.User](store, domain.CollectionUsers, with(base, Kind("user"))...),
		PendingRegistrations: New[domain.PendingRegistration](store, domain.CollectionPendingRegistrations, with(base, Kind("pending registration"))...),

		Access:                 New[domain.UserTenantAccess](store, domain.CollectionUserTenantAccess, with(scoped, Kind("tenant access"))...),
		Units:                  New[domain.Unit](store, domain.CollectionUnits, with(scoped, Kind("unit"))...),
		Expenses:               New[domain.Expense](store, domain.CollectionExpenses, with(scoped, Kind("expense"))...),
		Vendors:                New[domain.Vendor](store, domain.CollectionVendors, with(scoped, Kind("vendor"))...),
		VendorContracts:        New[domain.VendorContract](store, domain.CollectionVendorContracts, with(scoped, Kind("vendor contract"))...),
		VendorHistory:          New[domain.VendorHistory](store, domain.CollectionVendorHistory, with(scoped, Kind("vendor history"))...),
		Quotes:                 New[domain.Quote](store, domain.CollectionQuotes, with(scoped, Kind("quote"))...),
		Meetings:               New[domain.Meeting](store, domain.CollectionMeetings, with(scoped, Kind("meeting"))...),
		Documents:              New[domain.Document](store, domain.CollectionDocuments, with(scoped, Kind("document"))...),
		DocumentFolders:        New[domain.DocumentFolder](store, domain.CollectionDocumentFolders, with(scoped, Kind("document folder"))...),
		RepairRequests:         New[domain.RepairRequest](store, domain.CollectionRepairRequests, with(scoped, Kind("repair request"), WithHistory("statusHistory"))...),
		Projects:               New[domain.MaintenanceProject](store, domain.CollectionMaintenanceProjects, with(scoped, Kind("maintenance project"), WithHistory("statusHistory"))...),
		Announcements:          New[domain.Announcement](store, domain.CollectionAnnouncements, with(scoped, Kind("announcement"))...),
		Messages:               New[domain.Message](store, domain.CollectionMessages, with(scoped, Kind("message"))...),
		Notifications:          New[domain.Notification](store, domain.CollectionNotifications, with(scoped, Kind("notification"))...),
		DismissedNotifications: New[domain.DismissedNotification](store, domain.CollectionDismissedNotifications, with(scoped, Kind("dismissed notification"))...),
		Funds:                  New[domain.Fund](store, domain.CollectionFunds, with(scoped, Kind("fund"))...),
		PaymentReminders:       New[domain.PaymentReminder](store, domain.CollectionPaymentReminders, with(scoped, Kind("payment reminder"))...),
		Outbox:                 New[domain.OutboxEntry](store, domain.CollectionMailOutbox, with(scoped, Kind("outbox entry"))...),

		opts:   scoped,
		logger: logger,
		retry:  readRetry(readRetries),
	}
}

// FundTransactions returns the repository for one fund's transactions.
func (s *Set) FundTransactions(fundID string) *Repository[domain.FundTransaction] {
	return New[domain.FundTransaction](s.Store, domain.FundTransactionsPath(fundID),
		append(append([]Option{}, s.opts...), Kind("fund transaction"))...)
}

// IDs lists the ids of documents in collection matching the equality
// filters, without decoding them. Transport errors are retried.
func (s *Set) IDs(ctx context.Context, collection string, filters ...docstore.Filter) ([]string, error) {
	return retry.Do(ctx, s.retry, s.logger, "ids "+collection, func(ctx context.Context) ([]string, error) {
		start := time.Now()
		docs, err := s.Store.Query(ctx, collection, filters...)
		metrics.ObserveStoreOp(collection, "query", err, time.Since(start))
		if err != nil {
			return nil, translate(collection, "query", collection, "", err)
		}
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		return ids, nil
	})
}

// Commit applies a batch, translating store errors.
func (s *Set) Commit(ctx context.Context, b docstore.Batch) error {
	start := time.Now()
	err := s.Store.Commit(ctx, b)
	metrics.ObserveStoreOp("batch", "commit", err, time.Since(start))
	if err != nil {
		return translate("batch", "commit", "batch", "", err)
	}
	return nil
}
