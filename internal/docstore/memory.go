package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"
)

type memoryDoc struct {
	revision int64
	fields   map[string]any
}

// MemoryStore is an in-process Store. It keeps store-native values (such as
// Timestamp) as they are, the way a hosted document store returns them.
type MemoryStore struct {
	mu           sync.RWMutex
	collections  map[string]map[string]*memoryDoc
	maxBatchSize int
	now          func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryMaxBatchSize overrides the batch size limit.
func WithMemoryMaxBatchSize(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithMemoryClock overrides the clock used for server timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections:  make(map[string]map[string]*memoryDoc),
		maxBatchSize: DefaultMaxBatchSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) stamp() Timestamp { return TimestampFromTime(s.now()) }

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, false, unavailable("get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.collections[collection][id]
	if !ok {
		return Document{}, false, nil
	}
	return d.snapshot(id), true, nil
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return unavailable("create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	s.put(collection, id, resolveFields(fields, s.stamp()))
	return nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return unavailable("set", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, resolveFields(fields, s.stamp()))
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, m Mutation) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, unavailable("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if m.ExpectRevision != 0 && m.ExpectRevision != d.revision {
		return Document{}, fmt.Errorf("%s/%s at revision %d, expected %d: %w",
			collection, id, d.revision, m.ExpectRevision, ErrRevisionMismatch)
	}
	next := cloneFields(d.fields)
	if err := applyMutation(next, m, s.stamp()); err != nil {
		return Document{}, err
	}
	d.fields = next
	d.revision++
	return d.snapshot(id), nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("query", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0)
	for id, d := range s.collections[collection] {
		if matches(d.fields, filters) {
			out = append(out, d.snapshot(id))
		}
	}
	return out, nil
}

func (s *MemoryStore) Commit(ctx context.Context, batch Batch) error {
	if err := checkBatch(batch, s.maxBatchSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("commit", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	for _, w := range batch {
		switch w.Op {
		case OpSet:
			s.put(w.Collection, w.ID, resolveFields(w.Fields, now))
		case OpDelete:
			delete(s.collections[w.Collection], w.ID)
		default:
			return fmt.Errorf("unknown batch op %d", w.Op)
		}
	}
	return nil
}

func (s *MemoryStore) MaxBatchSize() int { return s.maxBatchSize }

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

// put must be called with the write lock held.
func (s *MemoryStore) put(collection, id string, fields map[string]any) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*memoryDoc)
		s.collections[collection] = docs
	}
	if d, ok := docs[id]; ok {
		d.fields = fields
		d.revision++
		return
	}
	docs[id] = &memoryDoc{revision: 1, fields: fields}
}

func (d *memoryDoc) snapshot(id string) Document {
	return Document{ID: id, Revision: d.revision, Fields: cloneFields(d.fields)}
}

func cloneFields(fields map[string]any) map[string]any {
	return cloneValue(fields).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func matches(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !valuesEqual(fields[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// valuesEqual compares numbers by value regardless of their Go type.
func valuesEqual(a, b any) bool {
	if na, ok := toFloat(a); ok {
		nb, ok := toFloat(b)
		return ok && na == nb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
