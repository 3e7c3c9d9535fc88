package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/stratahub/internal/docstore"
	"github.com/aryan0dhankhar/stratahub/internal/handler"
	"github.com/aryan0dhankhar/stratahub/internal/infrastructure/blob"
	"github.com/aryan0dhankhar/stratahub/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/stratahub/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/stratahub/internal/lifecycle"
	"github.com/aryan0dhankhar/stratahub/internal/notify"
	"github.com/aryan0dhankhar/stratahub/internal/observability/metrics"
	"github.com/aryan0dhankhar/stratahub/internal/observability/tracing"
	"github.com/aryan0dhankhar/stratahub/internal/repository"
	"github.com/aryan0dhankhar/stratahub/internal/security"
	"github.com/aryan0dhankhar/stratahub/internal/security/audit"
	"github.com/aryan0dhankhar/stratahub/internal/security/auth"
	"github.com/aryan0dhankhar/stratahub/internal/security/middleware"
	"github.com/aryan0dhankhar/stratahub/internal/security/ratelimit"
	"github.com/aryan0dhankhar/stratahub/internal/service"
	"github.com/aryan0dhankhar/stratahub/internal/worker"
	"github.com/aryan0dhankhar/stratahub/pkg/config"
	"github.com/aryan0dhankhar/stratahub/pkg/database"
)

func main() {
	// 1. Load configuration; unusable store credentials end the process here
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting StrataHub server",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.Store.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "stratahub", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Open the document store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open document store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	// 4. Initialize repositories and the lifecycle engine
	auditLogger := audit.NewLogger(log)
	set := repository.NewSet(store, cfg.StoreReadRetries, log)
	engine := lifecycle.NewEngine(set.RepairRequests, set.Projects, auditLogger, log)

	// 5. Notification dispatch: queue, sender, worker pool
	checks := map[string]handler.Pinger{"store": store}
	var queue notify.Queue = notify.NewChannelQueue(cfg.DispatchQueueSize)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		queue = notify.NewRedisQueue(redisClient, notify.DefaultRedisQueueKey, cfg.DispatchQueueSize)
		checks["redis"] = redisClient
	}
	dispatcher := notify.NewDispatcher(set, queue, newSender(cfg, log), notify.Config{Workers: cfg.DispatchWorkers}, log)

	// 6. Document blob purge after tenant deletion
	var purger service.Purger
	if cfg.Blob.Bucket != "" {
		s3Purger, err := blob.NewS3Purger(ctx, blob.Config{
			Bucket:          cfg.Blob.Bucket,
			Region:          cfg.Blob.Region,
			Endpoint:        cfg.Blob.Endpoint,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
			PathStyle:       cfg.Blob.PathStyle,
		}, log)
		if err != nil {
			log.Error("failed to initialize blob purger", slog.String("error", err.Error()))
			os.Exit(1)
		}
		purger = s3Purger
	}

	// 7. Initialize services
	notifications := service.NewNotificationService(set, dispatcher, log)
	access := service.NewAccessService(set, log)
	repairs := service.NewRepairRequestService(set, engine, notifications, log)
	conversion := service.NewConversionService(set, engine, notifications, auditLogger, log)
	projects := service.NewProjectService(set, log)
	deletion := service.NewTenantDeletionService(set, purger, auditLogger, log)
	registrations := service.NewRegistrationService(set, access, auditLogger, log)

	// 8. Security components
	authz := security.NewAuthorizationService(log)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "stratahub")
	rateLimiter := ratelimit.NewLimiter(100, time.Minute) // per tenant
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using the development secret")
	}

	// 9. Setup HTTP routes
	mux := http.NewServeMux()
	handler.NewHealthHandler(checks, log).Register(mux)
	handler.NewRepairRequestHandler(repairs, conversion, authz, log).Register(mux)
	handler.NewProjectHandler(projects, engine, authz, log).Register(mux)
	handler.NewTenantHandler(deletion, access, authz, rateLimiter, log).Register(mux)
	handler.NewNotificationHandler(notifications, authz, log).Register(mux)
	handler.NewRegistrationHandler(registrations, authz, rateLimiter, log).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// request ID -> CORS -> JWT -> rate limit -> content type -> metrics -> mux
	root := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.JWTMiddleware(tokenManager, auditLogger, log),
		middleware.RateLimitMiddleware(rateLimiter, log),
		middleware.ValidateJSONContentType(log),
		metrics.HTTPMetricsMiddleware,
	)

	// 10. Start background workers
	outboxWorker := worker.NewOutboxWorker(set.Outbox, dispatcher, log, cfg.OutboxInterval, cfg.OutboxMaxAttempts)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		outboxWorker.Start(ctx)
	}()

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(root, "stratahub"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("dispatch_workers", cfg.DispatchWorkers),
		slog.Int("max_batch_size", store.MaxBatchSize()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop dispatcher and outbox worker
	wg.Wait()
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// openStore builds the document store named by the credentials.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (docstore.Store, func(), error) {
	creds := cfg.Store
	if creds.Driver == config.DriverMemory {
		log.Warn("using the in-memory document store; data is lost on restart")
		return docstore.NewMemoryStore(docstore.WithMemoryMaxBatchSize(cfg.StoreMaxBatchSize)), func() {}, nil
	}

	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Driver:          creds.Driver,
		DSN:             creds.DSN,
		MaxOpenConns:    creds.MaxOpenConns,
		MaxIdleConns:    creds.MaxIdleConns,
		ConnMaxLifetime: time.Duration(creds.ConnMaxLifetimeSeconds) * time.Second,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	dialect, err := docstore.DialectFor(pool.Driver())
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	store, err := docstore.NewSQLStore(ctx, pool.GetDB(), dialect, cfg.StoreMaxBatchSize, log)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, func() { _ = pool.Close() }, nil
}

func newSender(cfg *config.Config, log *slog.Logger) notify.Sender {
	switch cfg.Email.Transport {
	case "http":
		return notify.NewHTTPSender(cfg.Email.APIURL, cfg.Email.APIKey, log)
	case "smtp":
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	default:
		return notify.NewLogSender(log)
	}
}
