package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/receipt-pipeline/internal/application"
	"github.com/bryanwahyu/receipt-pipeline/internal/application/auth"
	appreceipts "github.com/bryanwahyu/receipt-pipeline/internal/application/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/config"
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/reflections"
	"github.com/bryanwahyu/receipt-pipeline/internal/infra/ai/mock"
	aiopenai "github.com/bryanwahyu/receipt-pipeline/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/receipt-pipeline/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/receipt-pipeline/internal/infra/db/postgres"
	"github.com/bryanwahyu/receipt-pipeline/internal/infra/httpserver"
	"github.com/bryanwahyu/receipt-pipeline/internal/infra/reflectclient"
	minioStore "github.com/bryanwahyu/receipt-pipeline/internal/infra/storage"
	"github.com/bryanwahyu/receipt-pipeline/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := middleware.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("service", "processor")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("processor stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	resolver, err := auth.NewResolver(cfg.IdentityEntries(os.Getenv))
	if err != nil {
		return fmt.Errorf("identities: %w", err)
	}
	if resolver.Len() == 0 {
		logger.Warn("no credentials configured, every request will be rejected")
	}

	serviceKey := cfg.ServiceKey(os.Getenv)
	if serviceKey == "" {
		logger.Warn("reflection service key is empty, reflection calls will be refused", "env", cfg.Reflection.ServiceKeyEnv)
	}

	checkers := map[string]middleware.HealthChecker{}
	// reflection is fail-open, so an unreachable reflector only degrades health
	if u, err := url.Parse(cfg.Reflection.URL); err == nil {
		u.Path, u.RawQuery = "/live", ""
		checkers["reflector"] = middleware.Optional(&middleware.HTTPHealthChecker{URL: u.String()})
	}

	// optional failure log
	db, failures, err := openFailureLog(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		logger.Info("reflection failure log enabled", "driver", cfg.Database.Driver)
	}

	// optional document store
	var documents domain.DocumentSource
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		documents = store
		logger.Info("object storage enabled", "bucket", cfg.Minio.BucketName)
	}

	svc := &appreceipts.Service{
		Extractor:         newExtractor(cfg, logger),
		Reflector:         reflectclient.New(cfg.Reflection.URL, serviceKey, cfg.ReflectionTimeout()),
		Failures:          failures,
		Clock:             application.SystemClock{},
		Logger:            logger,
		ReflectionTimeout: cfg.ReflectionTimeout(),
		ValidationRules:   cfg.Reflection.ValidationRules,
	}

	handler := httpserver.NewRouter(svc, documents, failures, httpserver.Options{
		Resolver:       resolver,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(ctx, cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate),
		HealthCheckers: checkers,
		HealthInfo:     map[string]string{"service": "processor", "reflection_url": cfg.Reflection.URL},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ReflectionTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, srv, logger)
}

// newExtractor picks the vision backend when enabled and keyed, otherwise
// the fixed mock draft.
func newExtractor(cfg *config.Config, logger *slog.Logger) domain.Extractor {
	key := cfg.OpenAIKey(os.Getenv)
	if !cfg.AI.VisionExtraction || key == "" {
		logger.Info("using mock extractor")
		return mock.Extractor{}
	}
	logger.Info("using vision extractor", "model", cfg.AI.Model)
	if cfg.AI.BaseURL != "" {
		return aiopenai.NewClientWithBaseURL(key, cfg.AI.BaseURL, cfg.AI.Model)
	}
	return aiopenai.NewClient(key, cfg.AI.Model)
}

func openFailureLog(ctx context.Context, cfg *config.Config) (*sql.DB, reflections.Repository, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		return db, mysqlp.NewReflectionFailureRepository(db), nil
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		return db, pgp.NewReflectionFailureRepository(db), nil
	default:
		return nil, nil, nil
	}
}

func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
