package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalidCredentials is returned when the store credentials cannot be
// parsed or are incomplete.
var ErrInvalidCredentials = errors.New("invalid store credentials")

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	CORSAllowedOrigins []string

	Store             StoreCredentials
	StoreMaxBatchSize int
	StoreReadRetries  int

	RedisURL string

	Email             EmailConfig
	DispatchWorkers   int
	DispatchQueueSize int
	OutboxInterval    time.Duration
	OutboxMaxAttempts int

	JWTSecret string
	Blob      BlobConfig
}

// StoreCredentials is the connectivity object for the document store. It
// is supplied as JSON in STORE_CREDENTIALS or in the file named by
// STORE_CREDENTIALS_FILE.
type StoreCredentials struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"maxOpenConns,omitempty"`
	MaxIdleConns           int    `json:"maxIdleConns,omitempty"`
	ConnMaxLifetimeSeconds int    `json:"connMaxLifetimeSeconds,omitempty"`
}

// EmailConfig selects and configures the email collaborator
type EmailConfig struct {
	Transport    string // log, http or smtp
	APIURL       string
	APIKey       string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
}

// BlobConfig points at the bucket holding tenant documents. An empty
// bucket disables blob purging.
type BlobConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Load reads configuration from the environment, after loading a .env file
// (or the file named by ENV_FILE) when one exists. Variables already set in
// the environment win over the file.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Environment:        v.GetString("ENVIRONMENT"),
		ServerPort:         v.GetInt("SERVER_PORT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		CORSAllowedOrigins: parseCSV(v.GetString("CORS_ALLOWED_ORIGINS")),
		StoreMaxBatchSize:  v.GetInt("STORE_MAX_BATCH_SIZE"),
		StoreReadRetries:   v.GetInt("STORE_READ_RETRIES"),
		RedisURL:           v.GetString("REDIS_URL"),
		Email: EmailConfig{
			Transport:    strings.ToLower(v.GetString("EMAIL_TRANSPORT")),
			APIURL:       v.GetString("EMAIL_API_URL"),
			APIKey:       v.GetString("EMAIL_API_KEY"),
			SMTPHost:     v.GetString("SMTP_HOST"),
			SMTPPort:     v.GetInt("SMTP_PORT"),
			SMTPUsername: v.GetString("SMTP_USERNAME"),
			SMTPPassword: v.GetString("SMTP_PASSWORD"),
			From:         v.GetString("EMAIL_FROM"),
		},
		DispatchWorkers:   v.GetInt("DISPATCH_WORKERS"),
		DispatchQueueSize: v.GetInt("DISPATCH_QUEUE_SIZE"),
		OutboxInterval:    time.Duration(v.GetInt("OUTBOX_INTERVAL_SECONDS")) * time.Second,
		OutboxMaxAttempts: v.GetInt("OUTBOX_MAX_ATTEMPTS"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		Blob: BlobConfig{
			Bucket:          v.GetString("BLOB_BUCKET"),
			Region:          v.GetString("BLOB_REGION"),
			Endpoint:        v.GetString("BLOB_ENDPOINT"),
			AccessKeyID:     v.GetString("BLOB_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("BLOB_SECRET_ACCESS_KEY"),
			PathStyle:       v.GetBool("BLOB_PATH_STYLE"),
		},
	}

	if cfg.ServerPort <= 0 {
		return nil, fmt.Errorf("invalid SERVER_PORT: %q", v.GetString("SERVER_PORT"))
	}
	if cfg.StoreMaxBatchSize <= 0 {
		return nil, fmt.Errorf("invalid STORE_MAX_BATCH_SIZE: %q", v.GetString("STORE_MAX_BATCH_SIZE"))
	}
	switch cfg.Email.Transport {
	case "log":
	case "http":
		if cfg.Email.APIURL == "" {
			return nil, fmt.Errorf("EMAIL_API_URL is required for the http email transport")
		}
	case "smtp":
		if cfg.Email.SMTPHost == "" {
			return nil, fmt.Errorf("SMTP_HOST is required for the smtp email transport")
		}
	default:
		return nil, fmt.Errorf("unknown EMAIL_TRANSPORT %q", cfg.Email.Transport)
	}

	creds, err := loadCredentials(v.GetString("STORE_CREDENTIALS"), v.GetString("STORE_CREDENTIALS_FILE"), cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	cfg.Store = creds
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("STORE_MAX_BATCH_SIZE", 500)
	v.SetDefault("STORE_READ_RETRIES", 3)
	v.SetDefault("EMAIL_TRANSPORT", "log")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_FROM", "noreply@stratahub.local")
	v.SetDefault("DISPATCH_WORKERS", 4)
	v.SetDefault("DISPATCH_QUEUE_SIZE", 1024)
	v.SetDefault("OUTBOX_INTERVAL_SECONDS", 60)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 5)
	v.SetDefault("BLOB_REGION", "us-east-1")
}

// IsProduction reports whether the process runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// loadCredentials parses the inline credentials, or the credentials file
// when no inline value is set. Without either, development falls back to the
// in-memory store and production fails.
func loadCredentials(inline, file string, production bool) (StoreCredentials, error) {
	raw := strings.TrimSpace(inline)
	if raw == "" && file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return StoreCredentials{}, fmt.Errorf("%w: read %s: %v", ErrInvalidCredentials, file, err)
		}
		raw = strings.TrimSpace(string(b))
	}
	if raw == "" {
		if production {
			return StoreCredentials{}, fmt.Errorf("%w: STORE_CREDENTIALS or STORE_CREDENTIALS_FILE is required in production", ErrInvalidCredentials)
		}
		return StoreCredentials{Driver: DriverMemory}, nil
	}
	return ParseCredentials([]byte(raw))
}

// ParseCredentials decodes and checks a credentials object.
func ParseCredentials(raw []byte) (StoreCredentials, error) {
	var c StoreCredentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return StoreCredentials{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DSN == "" {
			return StoreCredentials{}, fmt.Errorf("%w: dsn is required for %s", ErrInvalidCredentials, c.Driver)
		}
	default:
		return StoreCredentials{}, fmt.Errorf("%w: unsupported driver %q", ErrInvalidCredentials, c.Driver)
	}
	return c, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
