package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/poweranger/trade-optimizer/internal/api"
	"github.com/poweranger/trade-optimizer/internal/config"
	"github.com/poweranger/trade-optimizer/internal/engine"
	"github.com/poweranger/trade-optimizer/internal/monitoring"
	"github.com/poweranger/trade-optimizer/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := store.NewDB(cfg.Data.Dir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Data.SeedDir != "" {
		if err := store.NewLoader(db).LoadDir(cfg.Data.SeedDir); err != nil {
			slog.Error("Failed to load seed data", "error", err)
			os.Exit(1)
		}
	}

	repo := store.NewRepository(db)

	appLogger := monitoring.NewLogger()
	appMetrics := monitoring.NewMetrics()

	engineCfg := engine.DefaultConfig()
	engineCfg.TrainingTimeout = cfg.Model.TrainingTimeout
	engineCfg.TransactionLimit = cfg.Model.TransactionLimit
	engineCfg.ModelDir = cfg.Model.Dir
	engineCfg.Model.MinTrainingSamples = cfg.Model.MinSamples

	eng := engine.New(repo, engineCfg, appLogger, appMetrics)
	repo.SetIngestHook(eng.Invalidate)

	limiter := api.NewIPRateLimiter(cfg.Limiting.RequestsPerSecond, cfg.Limiting.Burst)

	router := api.Router(api.Deps{
		Engine:         eng,
		Repo:           repo,
		Logger:         appLogger,
		Metrics:        appMetrics,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		slog.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
