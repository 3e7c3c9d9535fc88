// Package repository provides typed, tenant-scoped access to the document
// store. Listing issues equality filters only; ordering and any other
// filtering happen in memory over the tenant's (small) record set, which is
// where indexed queries would be introduced if that assumption stops holding.
package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/reliability/retry"
)

// fields the repository owns; callers cannot overwrite them through Update
var protectedFields = []string{"id", "revision", "createdAt", "updatedAt", domain.FieldTenantID}

// Repository is the typed access path for one collection.
type Repository[T domain.Record] struct {
	store      docstore.Store
	collection string
	kind       string
	scoped     bool
	history    string
	retry      *retry.Config
	logger     *slog.Logger
}

// Option configures a Repository.
type Option func(*settings)

type settings struct {
	kind    string
	scoped  bool
	history string
	retries int
	logger  *slog.Logger
}

// Kind names the record kind in errors and logs.
func Kind(kind string) Option { return func(s *settings) { s.kind = kind } }

// TenantScoped requires a tenantId on every created record.
func TenantScoped() Option { return func(s *settings) { s.scoped = true } }

// WithHistory marks field as an append-only status log. Update never writes
// it; only AppendHistory extends it.
func WithHistory(field string) Option { return func(s *settings) { s.history = field } }

// WithReadRetries sets how many attempts a read makes on transport errors.
func WithReadRetries(n int) Option { return func(s *settings) { s.retries = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.logger = l } }

// New creates a repository for collection.
func New[T domain.Record](store docstore.Store, collection string, opts ...Option) *Repository[T] {
	st := settings{kind: collection, retries: 3}
	for _, opt := range opts {
		opt(&st)
	}
	if st.logger == nil {
		st.logger = slog.Default()
	}
	return &Repository[T]{
		store:      store,
		collection: collection,
		kind:       st.kind,
		scoped:     st.scoped,
		history:    st.history,
		retry:      readRetry(st.retries),
		logger:     st.logger.With(slog.String("collection", collection)),
	}
}

// Collection returns the collection path.
func (r *Repository[T]) Collection() string { return r.collection }

// Create stores rec under its ID, generating one when empty, stamps
// createdAt/updatedAt with the store clock and returns the stored record as
// read back. An existing ID is a ConflictError, so Create doubles as
// create-if-absent.
func (r *Repository[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	meta := rec.Metadata()
	if r.scoped && meta.TenantID == "" {
		return zero, domain.NewValidationError(domain.FieldTenantID, "is required")
	}
	if err := validateRecord(rec); err != nil {
		return zero, err
	}
	fields, err := encode(rec)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", r.kind, err)
	}
	id := meta.ID
	if id == "" {
		id = uuid.NewString()
	}
	delete(fields, "id")
	delete(fields, "revision")
	fields["createdAt"] = docstore.ServerTimestamp()
	fields["updatedAt"] = docstore.ServerTimestamp()

	start := time.Now()
	err = r.store.Create(ctx, r.collection, id, fields)
	metrics.ObserveStoreOp(r.collection, "create", err, time.Since(start))
	if err != nil {
		return zero, r.storeError("create", id, err)
	}
	r.logger.Debug("record created", slog.String("id", id), slog.String("tenant_id", meta.TenantID))

	out, ok, err := r.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, &domain.NotFoundError{Kind: r.kind, ID: id}
	}
	return out, nil
}

// Get returns false when the record does not exist. Transport errors are
// retried.
func (r *Repository[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	doc, err := retry.Do(ctx, r.retry, r.logger, "get "+r.collection, func(ctx context.Context) (*docstore.Document, error) {
		start := time.Now()
		d, ok, err := r.store.Get(ctx, r.collection, id)
		metrics.ObserveStoreOp(r.collection, "get", err, time.Since(start))
		if err != nil {
			return nil, r.storeError("get", id, err)
		}
		if !ok {
			return nil, nil
		}
		return &d, nil
	})
	if err != nil {
		return zero, false, err
	}
	if doc == nil {
		return zero, false, nil
	}
	rec, err := decode[T](*doc)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s %s: %w", r.kind, id, err)
	}
	return rec, true, nil
}

// Query selects records. Filters are sent to the store; Where, Less and
// Limit are applied in memory. Results default to newest first.
type Query[T any] struct {
	TenantID string
	Filters  []docstore.Filter
	Where    func(T) bool
	Less     func(a, b T) bool
	Limit    int
}

// ListByTenant returns the tenant's records matching the equality filters,
// newest first. A record whose tenantId differs from tenantID is never
// returned.
func (r *Repository[T]) ListByTenant(ctx context.Context, tenantID string, filters ...docstore.Filter) ([]T, error) {
	return r.Find(ctx, Query[T]{TenantID: tenantID, Filters: filters})
}

// List returns records across tenants. Use it for global collections.
func (r *Repository[T]) List(ctx context.Context, filters ...docstore.Filter) ([]T, error) {
	return r.Find(ctx, Query[T]{Filters: filters})
}

// Find runs q. A non-empty TenantID adds the tenant filter and enforces
// isolation on the results.
func (r *Repository[T]) Find(ctx context.Context, q Query[T]) ([]T, error) {
	filters := q.Filters
	if q.TenantID != "" {
		filters = append([]docstore.Filter{docstore.Eq(domain.FieldTenantID, q.TenantID)}, filters...)
	}
	docs, err := retry.Do(ctx, r.retry, r.logger, "query "+r.collection, func(ctx context.Context) ([]docstore.Document, error) {
		start := time.Now()
		d, err := r.store.Query(ctx, r.collection, filters...)
		metrics.ObserveStoreOp(r.collection, "query", err, time.Since(start))
		if err != nil {
			return nil, r.storeError("query", "", err)
		}
		return d, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode[T](doc)
		if err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", r.kind, doc.ID, err)
		}
		if q.TenantID != "" && rec.Metadata().TenantID != q.TenantID {
			r.logger.Warn("dropping record from foreign tenant",
				slog.String("id", doc.ID),
				slog.String("tenant_id", q.TenantID),
				slog.String("record_tenant_id", rec.Metadata().TenantID),
			)
			continue
		}
		if q.Where != nil && !q.Where(rec) {
			continue
		}
		out = append(out, rec)
	}

	if q.Less != nil {
		slices.SortStableFunc(out, func(a, b T) int {
			switch {
			case q.Less(a, b):
				return -1
			case q.Less(b, a):
				return 1
			}
			return 0
		})
	} else {
		slices.SortStableFunc(out, newestFirst[T])
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Update loads the record, applies mutate, and writes back only the fields
// that changed, conditional on the revision that was read. A record deleted
// in the meantime is a NotFoundError; one changed in the meantime is a
// ConflictError.
func (r *Repository[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	return r.write(ctx, "update", id, 0, nil, mutate)
}

// AppendHistory appends entry to the status log and writes the side fields
// mutate changes, in one conditional write. A non-zero expectRevision must
// match the stored revision.
func (r *Repository[T]) AppendHistory(ctx context.Context, id string, expectRevision int64, entry domain.StatusEntry, mutate func(*T) error) (T, error) {
	var zero T
	if r.history == "" {
		return zero, fmt.Errorf("%s has no status history", r.kind)
	}
	return r.write(ctx, "append_history", id, expectRevision, &entry, mutate)
}

func (r *Repository[T]) write(ctx context.Context, op, id string, expectRevision int64, entry *domain.StatusEntry, mutate func(*T) error) (T, error) {
	var zero T
	current, ok, err := r.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, &domain.NotFoundError{Kind: r.kind, ID: id}
	}
	revision := current.Metadata().Revision
	if expectRevision != 0 && expectRevision != revision {
		return zero, domain.NewConflictError(r.kind, id, "record was modified concurrently")
	}

	before, err := encode(current)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", r.kind, err)
	}
	next := current
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return zero, err
		}
	}
	if next.Metadata().TenantID != current.Metadata().TenantID {
		return zero, domain.NewValidationError(domain.FieldTenantID, "cannot be changed")
	}
	if err := validateRecord(next); err != nil {
		return zero, err
	}
	after, err := encode(next)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", r.kind, err)
	}

	set := changedFields(before, after, r.history)
	set["updatedAt"] = docstore.ServerTimestamp()
	m := docstore.Mutation{Set: set, ExpectRevision: revision}
	if entry != nil {
		m.Append = map[string][]any{r.history: {historyEntry(*entry)}}
	}

	start := time.Now()
	doc, err := r.store.Update(ctx, r.collection, id, m)
	metrics.ObserveStoreOp(r.collection, op, err, time.Since(start))
	if err != nil {
		return zero, r.storeError(op, id, err)
	}
	out, err := decode[T](doc)
	if err != nil {
		return zero, fmt.Errorf("decode %s %s: %w", r.kind, id, err)
	}
	return out, nil
}

// Delete removes the record. Deleting a missing record succeeds.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := r.store.Delete(ctx, r.collection, id)
	metrics.ObserveStoreOp(r.collection, "delete", err, time.Since(start))
	if err != nil {
		return r.storeError("delete", id, err)
	}
	return nil
}

// readRetry retries transport errors only; writes are never retried.
func readRetry(attempts int) *retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, domain.ErrTransport) }
	return cfg
}

func (r *Repository[T]) storeError(op, id string, err error) error {
	return translate(r.kind, op, r.collection, id, err)
}

func translate(kind, op, collection, id string, err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return &domain.NotFoundError{Kind: kind, ID: id}
	case errors.Is(err, docstore.ErrAlreadyExists):
		return domain.NewConflictError(kind, id, "already exists")
	case errors.Is(err, docstore.ErrRevisionMismatch):
		return domain.NewConflictError(kind, id, "record was modified concurrently")
	case errors.Is(err, docstore.ErrBatchTooLarge), errors.Is(err, docstore.ErrInvalidField):
		return &domain.ValidationError{Message: err.Error()}
	case errors.Is(err, docstore.ErrUnavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &domain.TransportError{Op: op + " " + collection, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, collection, err)
}

func newestFirst[T domain.Record](a, b T) int {
	ma, mb := a.Metadata(), b.Metadata()
	if c := mb.CreatedAt.Compare(ma.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(ma.ID, mb.ID)
}

func encode(rec any) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decode[T any](doc docstore.Document) (T, error) {
	var out T
	fields := docstore.NormalizeFields(doc.Fields)
	fields["id"] = doc.ID
	fields["revision"] = doc.Revision
	raw, err := json.Marshal(fields)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// changedFields returns the top-level fields that differ between before and
// after, skipping the owned fields and the history log. Fields present before
// but dropped after are cleared.
func changedFields(before, after map[string]any, history string) map[string]any {
	set := map[string]any{}
	for k, v := range after {
		if skipField(k, history) {
			continue
		}
		if old, ok := before[k]; !ok || !reflect.DeepEqual(old, v) {
			set[k] = v
		}
	}
	for k := range before {
		if skipField(k, history) {
			continue
		}
		if _, ok := after[k]; !ok {
			set[k] = nil
		}
	}
	return set
}

func skipField(k, history string) bool {
	return (history != "" && k == history) || slices.Contains(protectedFields, k)
}

func historyEntry(e domain.StatusEntry) map[string]any {
	m := map[string]any{
		"status":    e.Status,
		"changedBy": e.ChangedBy,
		"changedAt": docstore.TimestampFromTime(e.ChangedAt),
	}
	if e.Reason != "" {
		m["reason"] = e.Reason
	}
	return m
}
