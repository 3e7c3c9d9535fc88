package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionPoolSQLite(t *testing.T) {
	ctx := context.Background()
	pool, err := NewConnectionPool(ctx, &Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "strata.db"),
	}, nil)
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, DriverSQLite, pool.Driver())
	assert.Equal(t, 1, pool.GetDB().Stats().MaxOpenConnections)
	assert.NoError(t, pool.Health(ctx))

	require.NoError(t, pool.Close())
	assert.Error(t, pool.Health(ctx))
}

func TestNewConnectionPoolRejectsBadConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewConnectionPool(ctx, &Config{Driver: "mysql", DSN: "x"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = NewConnectionPool(ctx, &Config{Driver: DriverPostgres}, nil)
	assert.ErrorContains(t, err, "DSN is required")
}
