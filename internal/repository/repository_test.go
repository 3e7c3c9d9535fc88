package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
)

// tickingClock advances one second per call so creation order is observable.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestSet(t *testing.T) *Set {
	t.Helper()
	return NewSet(docstore.NewMemoryStore(docstore.WithMemoryClock(tickingClock())), 3, nil)
}

func sampleRequest(tenantID string) domain.RepairRequest {
	return domain.RepairRequest{
		Meta:          domain.Meta{TenantID: tenantID},
		Title:         "Cracked balcony tiles",
		Description:   "Level 3 common balcony",
		Area:          "balcony",
		Severity:      domain.SeverityHigh,
		EstimatedCost: decimal.NewNullDecimal(decimal.RequireFromString("1250.50")),
		SubmittedBy:   "user-1",
		SubmitterName: "Sam Lee",
		Status:        domain.RequestSuggested,
		StatusHistory: domain.NewStatusLog(domain.StatusEntry{
			Status:    domain.RequestSuggested,
			ChangedBy: "user-1",
			ChangedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		}),
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)

	created, err := set.RepairRequests.Create(ctx, sampleRequest("t1"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())
	assert.Equal(t, int64(1), created.Revision)

	got, ok, err := set.RepairRequests.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "Cracked balcony tiles", got.Title)
	assert.Equal(t, domain.SeverityHigh, got.Severity)
	assert.True(t, got.EstimatedCost.Valid)
	assert.Equal(t, "1250.5", got.EstimatedCost.Decimal.String())
	assert.Equal(t, 1, got.StatusHistory.Len())
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
}

func TestCreateKeepsCallerID(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)

	u := domain.Unit{Meta: domain.Meta{ID: "unit-7", TenantID: "t1"}, UnitNumber: "7"}
	created, err := set.Units.Create(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "unit-7", created.ID)

	_, err = set.Units.Create(ctx, u)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)

	_, err := set.Units.Create(ctx, domain.Unit{UnitNumber: "1"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.FieldTenantID, verr.Field)

	req := sampleRequest("t1")
	req.Title = ""
	_, err = set.RepairRequests.Create(ctx, req)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	req = sampleRequest("t1")
	req.Severity = "catastrophic"
	_, err = set.RepairRequests.Create(ctx, req)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "severity", verr.Field)
}

func TestGetMissingIsAbsence(t *testing.T) {
	_, ok, err := newTestSet(t).Units.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListByTenantIsolatesAndSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)

	for i := 1; i <= 3; i++ {
		_, err := set.Units.Create(ctx, domain.Unit{Meta: domain.Meta{TenantID: "t1"}, UnitNumber: fmt.Sprint(i)})
		require.NoError(t, err)
	}
	_, err := set.Units.Create(ctx, domain.Unit{Meta: domain.Meta{TenantID: "t2"}, UnitNumber: "99"})
	require.NoError(t, err)

	units, err := set.Units.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, units, 3)
	for _, u := range units {
		assert.Equal(t, "t1", u.TenantID)
	}
	assert.Equal(t, []string{"3", "2", "1"}, []string{units[0].UnitNumber, units[1].UnitNumber, units[2].UnitNumber})

	none, err := set.Units.ListByTenant(ctx, "t3")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestFindFiltersInMemory(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)

	for _, amount := range []string{"10", "250", "75"} {
		_, err := set.Expenses.Create(ctx, domain.Expense{
			Meta:        domain.Meta{TenantID: "t1"},
			Description: "expense " + amount,
			Amount:      decimal.RequireFromString(amount),
			Status:      "pending",
		})
		require.NoError(t, err)
	}

	big, err := set.Expenses.Find(ctx, Query[domain.Expense]{
		TenantID: "t1",
		Filters:  []docstore.Filter{docstore.Eq("status", "pending")},
		Where:    func(e domain.Expense) bool { return e.Amount.GreaterThan(decimal.NewFromInt(50)) },
		Less:     func(a, b domain.Expense) bool { return a.Amount.LessThan(b.Amount) },
	})
	require.NoError(t, err)
	require.Len(t, big, 2)
	assert.Equal(t, "75", big[0].Amount.String())
	assert.Equal(t, "250", big[1].Amount.String())
}

func TestUpdateMergesAndStamps(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)
	created, err := set.RepairRequests.Create(ctx, sampleRequest("t1"))
	require.NoError(t, err)

	updated, err := set.RepairRequests.Update(ctx, created.ID, func(r *domain.RepairRequest) error {
		r.Description = "Level 3 and level 4 balconies"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Level 3 and level 4 balconies", updated.Description)
	assert.Equal(t, created.Title, updated.Title)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.Revision+1, updated.Revision)
	assert.Equal(t, 1, updated.StatusHistory.Len())
}

func TestUpdateCannotMoveTenant(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)
	created, err := set.Units.Create(ctx, domain.Unit{Meta: domain.Meta{TenantID: "t1"}, UnitNumber: "1"})
	require.NoError(t, err)

	_, err = set.Units.Update(ctx, created.ID, func(u *domain.Unit) error {
		u.TenantID = "t2"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	_, err := newTestSet(t).Units.Update(context.Background(), "gone", func(u *domain.Unit) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateDetectsConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)
	created, err := set.Units.Create(ctx, domain.Unit{Meta: domain.Meta{TenantID: "t1"}, UnitNumber: "1"})
	require.NoError(t, err)

	_, err = set.Units.Update(ctx, created.ID, func(u *domain.Unit) error {
		require.NoError(t, set.Units.Delete(ctx, created.ID))
		u.OwnerName = "Late Writer"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateDetectsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)
	created, err := set.Units.Create(ctx, domain.Unit{Meta: domain.Meta{TenantID: "t1"}, UnitNumber: "1"})
	require.NoError(t, err)

	_, err = set.Units.Update(ctx, created.ID, func(u *domain.Unit) error {
		_, err := set.Units.Update(ctx, created.ID, func(inner *domain.Unit) error {
			inner.OwnerName = "First Writer"
			return nil
		})
		require.NoError(t, err)
		u.OwnerName = "Second Writer"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, _, err := set.Units.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "First Writer", got.OwnerName)
}

func TestAppendHistoryOnlyGrows(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)
	created, err := set.RepairRequests.Create(ctx, sampleRequest("t1"))
	require.NoError(t, err)

	at := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	updated, err := set.RepairRequests.AppendHistory(ctx, created.ID, created.Revision,
		domain.StatusEntry{Status: domain.RequestApproved, ChangedBy: "chair", ChangedAt: at},
		func(r *domain.RepairRequest) error {
			r.Status = domain.RequestApproved
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 2, updated.StatusHistory.Len())
	last, _ := updated.StatusHistory.Last()
	assert.Equal(t, domain.RequestApproved, last.Status)
	assert.Equal(t, at, last.ChangedAt)
	assert.Equal(t, domain.RequestApproved, updated.Status)

	_, err = set.RepairRequests.AppendHistory(ctx, created.ID, created.Revision,
		domain.StatusEntry{Status: domain.RequestRejected, ChangedBy: "chair", ChangedAt: at}, nil)
	assert.ErrorIs(t, err, domain.ErrConflict, "stale revision must not append")

	_, err = set.Units.AppendHistory(ctx, "x", 0, domain.StatusEntry{}, nil)
	assert.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)
	created, err := set.Units.Create(ctx, domain.Unit{Meta: domain.Meta{TenantID: "t1"}, UnitNumber: "1"})
	require.NoError(t, err)

	require.NoError(t, set.Units.Delete(ctx, created.ID))
	require.NoError(t, set.Units.Delete(ctx, created.ID))
	require.NoError(t, set.Units.Delete(ctx, "never-existed"))
}

func TestFundTransactionsSubcollection(t *testing.T) {
	ctx := context.Background()
	set := newTestSet(t)
	tx, err := set.FundTransactions("fund-1").Create(ctx, domain.FundTransaction{
		Meta:   domain.Meta{TenantID: "t1"},
		FundID: "fund-1",
		Type:   "credit",
		Amount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	ids, err := set.IDs(ctx, domain.FundTransactionsPath("fund-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{tx.ID}, ids)

	ids, err = set.IDs(ctx, domain.FundTransactionsPath("fund-2"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// flakyStore fails the first n reads and every write with ErrUnavailable.
type flakyStore struct {
	docstore.Store
	mu         sync.Mutex
	failReads  int
	reads      int
	writeCalls int
	failWrites bool
}

func (f *flakyStore) Get(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	f.mu.Lock()
	f.reads++
	fail := f.reads <= f.failReads
	f.mu.Unlock()
	if fail {
		return docstore.Document{}, false, fmt.Errorf("get: %w", docstore.ErrUnavailable)
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *flakyStore) Create(ctx context.Context, collection, id string, fields map[string]any) error {
	f.mu.Lock()
	f.writeCalls++
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("create: %w", docstore.ErrUnavailable)
	}
	return f.Store.Create(ctx, collection, id, fields)
}

func TestReadsRetryTransportErrors(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, domain.CollectionUnits, "u1", map[string]any{"tenantId": "t1", "unitNumber": "1"}))

	flaky := &flakyStore{Store: mem, failReads: 2}
	units := New[domain.Unit](flaky, domain.CollectionUnits, WithReadRetries(3))

	u, ok, err := units.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", u.UnitNumber)
	assert.Equal(t, 3, flaky.reads)

	flaky.reads = 0
	flaky.failReads = 5
	_, _, err = units.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestWritesAreNotRetried(t *testing.T) {
	flaky := &flakyStore{Store: docstore.NewMemoryStore(), failWrites: true}
	units := New[domain.Unit](flaky, domain.CollectionUnits, TenantScoped(), WithReadRetries(3))

	_, err := units.Create(context.Background(), domain.Unit{Meta: domain.Meta{TenantID: "t1"}, UnitNumber: "1"})
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, 1, flaky.writeCalls)
}

func TestSQLiteRoundTripNormalisesStoredTimestamps(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := docstore.NewSQLStore(ctx, db, docstore.SQLiteDialect{}, 0, nil)
	require.NoError(t, err)
	set := NewSet(store, 3, nil)

	created, err := set.RepairRequests.Create(ctx, sampleRequest("t1"))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	updated, err := set.RepairRequests.AppendHistory(ctx, created.ID, created.Revision,
		domain.StatusEntry{Status: domain.RequestApproved, ChangedBy: "chair", ChangedAt: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)},
		func(r *domain.RepairRequest) error {
			r.Status = domain.RequestApproved
			return nil
		})
	require.NoError(t, err)
	entries := updated.StatusHistory.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), entries[1].ChangedAt)
	assert.Equal(t, "1250.5", updated.EstimatedCost.Decimal.String())

	list, err := set.RepairRequests.ListByTenant(ctx, "t1", docstore.Eq("status", domain.RequestApproved))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}
