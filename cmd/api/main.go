package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/issue-tracker/config"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/api/http/middleware"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/bootstrap"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/service"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/jobs"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/logging"
)

const serviceName = "issue-tracker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	zap.ReplaceGlobals(logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	err = run(cfg, logger, quit)
	_ = logger.Sync()
	if err != nil {
		log.Fatalf("%s: %v", serviceName, err)
	}
}

// run owns every resource it opens and releases them before returning, so
// the caller may exit on the returned error.
func run(cfg *config.Config, logger *zap.Logger, quit <-chan os.Signal) error {
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	svc := service.NewIssueService(store)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	scheduler := jobs.NewScheduler(svc, logger)
	if err := scheduler.Schedule("rate limiter sweep", "0 */5 * * * *", func(context.Context) {
		limiter.Sweep()
	}); err != nil {
		return err
	}
	if err := scheduler.Start(cfg.App.StatsSchedule); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    serviceName,
		Version:        cfg.App.Version,
		Backend:        cfg.App.StoreBackend,
		BasePath:       cfg.Server.BasePath,
		LegacyStatus:   cfg.Server.LegacyStatus,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter,
		Service:        svc,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.App.StoreBackend),
			zap.Bool("legacy_status", cfg.Server.LegacyStatus),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
