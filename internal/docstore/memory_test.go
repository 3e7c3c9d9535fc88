package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, maxBatch int) Store {
		return NewMemoryStore(WithMemoryMaxBatchSize(maxBatch))
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "units", "u1", map[string]any{"tags": []any{"a"}}))

	doc, _, err := s.Get(ctx, "units", "u1")
	require.NoError(t, err)
	doc.Fields["tags"].([]any)[0] = "mutated"

	again, _, err := s.Get(ctx, "units", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Fields["tags"].([]any)[0])
}

func TestMemoryStoreKeepsNativeTimestamps(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return fixed }))
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "units", "u1", map[string]any{
		"createdAt": ServerTimestamp(),
		"nested":    []any{map[string]any{"at": ServerTimestamp()}},
	}))

	doc, _, err := s.Get(ctx, "units", "u1")
	require.NoError(t, err)
	assert.Equal(t, TimestampFromTime(fixed), doc.Fields["createdAt"])
	assert.Equal(t, "2025-01-02T03:04:05Z", Normalize(doc.Fields["nested"]).([]any)[0].(map[string]any)["at"])
}

func TestMemoryStoreHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewMemoryStore().Get(ctx, "units", "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
}
