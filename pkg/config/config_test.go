package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points Load at a missing .env file.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 500, cfg.StoreMaxBatchSize)
	assert.Equal(t, 3, cfg.StoreReadRetries)
	assert.Equal(t, "log", cfg.Email.Transport)
	assert.Equal(t, time.Minute, cfg.OutboxInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Empty(t, cfg.Blob.Bucket)
}

func TestLoadFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_MAX_BATCH_SIZE", "50")
	t.Setenv("STORE_CREDENTIALS", `{"driver":"postgres","dsn":"postgres://strata@db/strata","maxOpenConns":10}`)
	t.Setenv("EMAIL_TRANSPORT", "smtp")
	t.Setenv("SMTP_HOST", "mail.internal")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.stratahub.io")
	t.Setenv("BLOB_BUCKET", "strata-docs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 50, cfg.StoreMaxBatchSize)
	assert.Equal(t, StoreCredentials{Driver: DriverPostgres, DSN: "postgres://strata@db/strata", MaxOpenConns: 10}, cfg.Store)
	assert.Equal(t, "mail.internal", cfg.Email.SMTPHost)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, []string{"https://app.stratahub.io"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "strata-docs", cfg.Blob.Bucket)
}

func TestLoadCredentialsFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"driver":"sqlite","dsn":"file:strata.db"}`), 0o600))
	t.Setenv("STORE_CREDENTIALS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "file:strata.db", cfg.Store.DSN)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STRATAHUB_TEST_DOTENV_PORT=7070\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("STRATAHUB_TEST_DOTENV_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", os.Getenv("STRATAHUB_TEST_DOTENV_PORT"))
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
}

func TestBadCredentialsFail(t *testing.T) {
	tests := map[string]string{
		"not json":       `{driver:`,
		"unknown driver": `{"driver":"mongo","dsn":"x"}`,
		"missing dsn":    `{"driver":"postgres"}`,
		"empty driver":   `{"dsn":"x"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			t.Setenv("STORE_CREDENTIALS", raw)
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCredentials))
		})
	}
}

func TestProductionRequiresCredentials(t *testing.T) {
	isolate(t)
	t.Setenv("ENVIRONMENT", "production")
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEmailTransportValidation(t *testing.T) {
	isolate(t)
	t.Setenv("EMAIL_TRANSPORT", "http")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("EMAIL_TRANSPORT", "pigeon")
	_, err = Load()
	assert.Error(t, err)
}
