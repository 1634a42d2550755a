package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/receipt-pipeline/internal/application/auth"
	"github.com/bryanwahyu/receipt-pipeline/internal/application/reflection"
	"github.com/bryanwahyu/receipt-pipeline/internal/config"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/ai"
	aiopenai "github.com/bryanwahyu/receipt-pipeline/internal/infra/ai/openai"
	"github.com/bryanwahyu/receipt-pipeline/internal/infra/httpserver"
	"github.com/bryanwahyu/receipt-pipeline/internal/middleware"
)

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := middleware.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("service", "reflector")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("reflector stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	resolver, err := auth.NewResolver(cfg.IdentityEntries(os.Getenv))
	if err != nil {
		return fmt.Errorf("identities: %w", err)
	}

	clock, err := cfg.FallbackClock()
	if err != nil {
		return err
	}

	// The strategy is fixed for the life of the process.
	var critic ai.Critic
	if key := cfg.OpenAIKey(os.Getenv); key != "" {
		if cfg.AI.BaseURL != "" {
			critic = aiopenai.NewClientWithBaseURL(key, cfg.AI.BaseURL, cfg.AI.Model)
		} else {
			critic = aiopenai.NewClient(key, cfg.AI.Model)
		}
	}
	svc := reflection.NewService(reflection.Select(critic, clock), logger)
	logger.Info("reflection strategy selected", "mode", svc.Mode(), "reference_date", cfg.Reflection.ReferenceDate)

	handler := httpserver.NewReflectionRouter(svc, httpserver.Options{
		Resolver:       resolver,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(ctx, cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate),
		HealthInfo:     map[string]string{"service": "reflector", "mode": string(svc.Mode())},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.ReflectorPort),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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
