// Package docstore is a schemaless document store addressed by collection
// path and document id. It supports equality queries only; ordering and
// range filtering are left to callers.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxBatchSize is the largest number of writes one Commit accepts.
const DefaultMaxBatchSize = 500

// Store errors. Backends wrap driver failures with ErrUnavailable.
var (
	ErrNotFound         = errors.New("document not found")
	ErrAlreadyExists    = errors.New("document already exists")
	ErrRevisionMismatch = errors.New("document revision mismatch")
	ErrBatchTooLarge    = errors.New("batch exceeds maximum size")
	ErrUnavailable      = errors.New("store unavailable")
	ErrInvalidField     = errors.New("invalid field name")
)

// Document is a stored record. Revision starts at 1 and increases on every
// write to the document.
type Document struct {
	ID       string
	Revision int64
	Fields   map[string]any
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Mutation describes a partial update. Set replaces top-level fields,
// Append adds entries to the end of array fields. A non-zero ExpectRevision
// makes the write conditional on the current revision.
type Mutation struct {
	Set            map[string]any
	Append         map[string][]any
	ExpectRevision int64
}

// Op is a batch write kind.
type Op int

const (
	OpSet Op = iota
	OpDelete
)

// Write is a single batched write.
type Write struct {
	Op         Op
	Collection string
	ID         string
	Fields     map[string]any
}

// Batch is an ordered set of writes committed atomically.
type Batch []Write

// Set queues an upsert.
func (b *Batch) Set(collection, id string, fields map[string]any) {
	*b = append(*b, Write{Op: OpSet, Collection: collection, ID: id, Fields: fields})
}

// Delete queues a delete.
func (b *Batch) Delete(collection, id string) {
	*b = append(*b, Write{Op: OpDelete, Collection: collection, ID: id})
}

// Store is the document store contract shared by every backend.
type Store interface {
	// Get returns false when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	// Create fails with ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, collection, id string, fields map[string]any) error
	// Set replaces the document, creating it when absent.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Update applies m to an existing document and returns the result.
	Update(ctx context.Context, collection, id string, m Mutation) (Document, error)
	// Delete is idempotent.
	Delete(ctx context.Context, collection, id string) error
	// Query returns every document matching all filters, in no particular order.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Commit applies every write or none.
	Commit(ctx context.Context, batch Batch) error
	MaxBatchSize() int
	Ping(ctx context.Context) error
	Close() error
}

// Timestamp is the store-native time representation.
type Timestamp struct {
	Seconds     int64 `json:"_seconds"`
	Nanoseconds int32 `json:"_nanoseconds"`
}

// TimestampFromTime converts t to a Timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int32(t.Nanosecond())}
}

// ToDate converts the timestamp to UTC time.
func (t Timestamp) ToDate() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanoseconds)).UTC()
}

type serverTimestamp struct{}

// ServerTimestamp returns a sentinel the store replaces with its own clock
// at write time. It is honoured in Set, Create, Update and batched sets, at
// any depth of nesting.
func ServerTimestamp() any { return serverTimestamp{} }

// resolveServerTimestamps returns a deep copy of v with every sentinel
// replaced by now.
func resolveServerTimestamps(v any, now Timestamp) any {
	switch val := v.(type) {
	case serverTimestamp:
		return now
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveServerTimestamps(item, now)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveServerTimestamps(item, now)
		}
		return out
	default:
		return v
	}
}

func resolveFields(fields map[string]any, now Timestamp) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return resolveServerTimestamps(fields, now).(map[string]any)
}

// applyMutation merges m onto fields in place.
func applyMutation(fields map[string]any, m Mutation, now Timestamp) error {
	for k, v := range m.Set {
		fields[k] = resolveServerTimestamps(v, now)
	}
	for k, entries := range m.Append {
		var current []any
		switch existing := fields[k].(type) {
		case nil:
		case []any:
			current = existing
		default:
			return fmt.Errorf("append to %q: field is %T, not an array", k, existing)
		}
		next := make([]any, 0, len(current)+len(entries))
		next = append(next, current...)
		for _, e := range entries {
			next = append(next, resolveServerTimestamps(e, now))
		}
		fields[k] = next
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func checkBatch(b Batch, max int) error {
	if len(b) > max {
		return fmt.Errorf("%w: %d writes, limit %d", ErrBatchTooLarge, len(b), max)
	}
	return nil
}
