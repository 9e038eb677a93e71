package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicdesk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"patient_link_mode", cfg.PatientLinkMode,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	limiter, closeLimiter := bootstrap.BuildRateLimiter(cfg, redisClient)
	defer closeLimiter()

	app, err := bootstrap.NewApp(cfg, stores, bootstrap.Options{
		Logger:     logger,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
		Limiter:    limiter,
	})
	if err != nil {
		return err
	}
	seedAdmin(ctx, cfg, app.Accounts, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// buildStores picks Postgres when DATABASE_URL is set and in-memory stores
// otherwise.
func buildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bootstrap.Stores, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory stores; data is lost on restart")
		return bootstrap.MemoryStores(cfg.AuditEnabled), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return bootstrap.Stores{}, nil, err
	}
	closers := []func(){pool.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if !cfg.AuditEnabled {
		return bootstrap.PostgresStores(pool, nil), closeAll, nil
	}
	auditDB, err := bootstrap.OpenAuditDB(ctx, cfg.DatabaseURL)
	if err != nil {
		closeAll()
		return bootstrap.Stores{}, nil, err
	}
	closers = append(closers, func() { _ = auditDB.Close() })
	return bootstrap.PostgresStores(pool, auditDB), closeAll, nil
}

// seedAdmin creates the first admin when SEED_ADMIN_EMAIL and
// SEED_ADMIN_PASSWORD are set. Failures are logged, not fatal.
func seedAdmin(ctx context.Context, cfg *appconfig.Config, svc *accounts.Service, logger *logging.Logger) {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return
	}
	account, created, err := svc.EnsureAdmin(ctx, accounts.RegisterInput{
		Name:     cfg.SeedAdminName,
		Email:    cfg.SeedAdminEmail,
		Password: cfg.SeedAdminPassword,
	})
	if err != nil {
		logger.Error("seed admin failed", "error", err)
		return
	}
	logger.Info("seed admin ready", "account_id", account.ID, "created", created)
}
