package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T, maxBatch int) Store) {
	ctx := context.Background()

	t.Run("get missing is absence not error", func(t *testing.T) {
		s := newStore(t, 0)
		_, ok, err := s.Get(ctx, "units", "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("create then get resolves server timestamps", func(t *testing.T) {
		s := newStore(t, 0)
		require.NoError(t, s.Create(ctx, "units", "u1", map[string]any{
			"tenantId":  "t1",
			"createdAt": ServerTimestamp(),
		}))
		doc, ok, err := s.Get(ctx, "units", "u1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), doc.Revision)
		assert.Equal(t, "t1", doc.Fields["tenantId"])
		created, isString := Normalize(doc.Fields["createdAt"]).(string)
		assert.True(t, isString, "createdAt should normalise to a string, got %T", doc.Fields["createdAt"])
		assert.NotEmpty(t, created)
	})

	t.Run("create duplicate fails", func(t *testing.T) {
		s := newStore(t, 0)
		require.NoError(t, s.Create(ctx, "units", "u1", map[string]any{"a": "b"}))
		err := s.Create(ctx, "units", "u1", map[string]any{"a": "c"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("update merges appends and bumps revision", func(t *testing.T) {
		s := newStore(t, 0)
		require.NoError(t, s.Create(ctx, "repairRequests", "r1", map[string]any{
			"status":        "suggested",
			"title":         "Broken gate",
			"statusHistory": []any{map[string]any{"status": "suggested"}},
		}))
		doc, err := s.Update(ctx, "repairRequests", "r1", Mutation{
			Set:            map[string]any{"status": "approved"},
			Append:         map[string][]any{"statusHistory": {map[string]any{"status": "approved"}}},
			ExpectRevision: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Revision)
		assert.Equal(t, "approved", doc.Fields["status"])
		assert.Equal(t, "Broken gate", doc.Fields["title"])
		assert.Len(t, doc.Fields["statusHistory"], 2)
	})

	t.Run("update with stale revision conflicts", func(t *testing.T) {
		s := newStore(t, 0)
		require.NoError(t, s.Create(ctx, "repairRequests", "r1", map[string]any{"status": "suggested"}))
		_, err := s.Update(ctx, "repairRequests", "r1", Mutation{Set: map[string]any{"status": "approved"}})
		require.NoError(t, err)
		_, err = s.Update(ctx, "repairRequests", "r1", Mutation{Set: map[string]any{"status": "rejected"}, ExpectRevision: 1})
		assert.ErrorIs(t, err, ErrRevisionMismatch)
	})

	t.Run("update missing document", func(t *testing.T) {
		s := newStore(t, 0)
		_, err := s.Update(ctx, "units", "ghost", Mutation{Set: map[string]any{"a": 1}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t, 0)
		require.NoError(t, s.Set(ctx, "units", "u1", map[string]any{"a": "b"}))
		require.NoError(t, s.Delete(ctx, "units", "u1"))
		require.NoError(t, s.Delete(ctx, "units", "u1"))
		_, ok, err := s.Get(ctx, "units", "u1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("query equality filters", func(t *testing.T) {
		s := newStore(t, 0)
		require.NoError(t, s.Set(ctx, "maintenanceProjects", "p1", map[string]any{"tenantId": "t1", "archived": false}))
		require.NoError(t, s.Set(ctx, "maintenanceProjects", "p2", map[string]any{"tenantId": "t1", "archived": true}))
		require.NoError(t, s.Set(ctx, "maintenanceProjects", "p3", map[string]any{"tenantId": "t2", "archived": false}))

		docs, err := s.Query(ctx, "maintenanceProjects", Eq("tenantId", "t1"))
		require.NoError(t, err)
		assert.Len(t, docs, 2)

		docs, err = s.Query(ctx, "maintenanceProjects", Eq("tenantId", "t1"), Eq("archived", false))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "p1", docs[0].ID)

		docs, err = s.Query(ctx, "maintenanceProjects", Eq("tenantId", "t3"))
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("query rejects unsafe field names", func(t *testing.T) {
		s := newStore(t, 0)
		if _, isMemory := s.(*MemoryStore); isMemory {
			t.Skip("memory store has no query language")
		}
		_, err := s.Query(ctx, "units", Eq("x') OR 1=1 --", "y"))
		assert.ErrorIs(t, err, ErrInvalidField)
	})

	t.Run("sub-collections are independent", func(t *testing.T) {
		s := newStore(t, 0)
		require.NoError(t, s.Set(ctx, "funds/f1/transactions", "x1", map[string]any{"amount": "10"}))
		docs, err := s.Query(ctx, "funds/f2/transactions")
		require.NoError(t, err)
		assert.Empty(t, docs)
		docs, err = s.Query(ctx, "funds/f1/transactions")
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("commit is atomic and bounded", func(t *testing.T) {
		s := newStore(t, 3)
		require.NoError(t, s.Set(ctx, "units", "u1", map[string]any{"tenantId": "t1"}))
		require.NoError(t, s.Set(ctx, "units", "u2", map[string]any{"tenantId": "t1"}))

		var b Batch
		b.Delete("units", "u1")
		b.Delete("units", "u2")
		b.Set("tenants", "t2", map[string]any{"name": "Harbour View", "updatedAt": ServerTimestamp()})
		require.NoError(t, s.Commit(ctx, b))

		docs, err := s.Query(ctx, "units")
		require.NoError(t, err)
		assert.Empty(t, docs)
		_, ok, err := s.Get(ctx, "tenants", "t2")
		require.NoError(t, err)
		assert.True(t, ok)

		var big Batch
		for i := 0; i < 4; i++ {
			big.Delete("units", fmt.Sprintf("u%d", i))
		}
		err = s.Commit(ctx, big)
		assert.True(t, errors.Is(err, ErrBatchTooLarge))
		assert.Equal(t, 3, s.MaxBatchSize())
	})
}
