package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mfaengine/internal/configuration"
	"mfaengine/internal/core"
	"mfaengine/internal/database"
	"mfaengine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))

	config := configuration.Read()
	logger := core.NewLogger(config.App.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profile, err := configuration.GetProfile(config.App.Profile, config.App.Workers)
	if err != nil {
		zap.L().Fatal("Failed to load profile", zap.Error(err))
	}
	zap.L().Info("Loaded profile",
		zap.String("profile", profile.Name),
		zap.Bool("engine", profile.Engine),
		zap.String("garbage_collector", string(profile.Workers.GarbageCollector)),
		zap.String("security_events", string(profile.Workers.SecurityEvents)))

	shutdownTracing, err := core.NewTracerProvider(ctx, config.Telemetry)
	if err != nil {
		zap.L().Fatal("Failed to initialize tracing", zap.Error(err))
	}

	db := database.InitDB(config.Database)
	cache := core.NewCache(config.Cache)
	activityLogger := core.NewActivityLogger(config.Activity)

	var eventsManager *core.EventsManager
	if profile.NeedsEvents() {
		subscribe := profile.Workers.SecurityEvents != models.WorkerModeDisabled
		eventsManager, err = core.NewEventsManager(ctx, config.Events, subscribe)
		if err != nil {
			zap.L().Fatal("Failed to initialize events", zap.Error(err))
		}
	}

	engineMetrics, registry := core.NewMetrics()
	core.StartMetricsServer(ctx, config.Telemetry.MetricsAddress, registry)

	appIdentity := uuid.New().String()

	if cache != nil {
		go cache.StartIdentityTicker(ctx, appIdentity)
		zap.L().Info("Cache identity ticker started")
	}

	if profile.Engine {
		engine, err := core.NewMFAService(config, db, cache, eventsManager, activityLogger, engineMetrics)
		if err != nil {
			zap.L().Fatal("Failed to initialize MFA engine", zap.Error(err))
		}
		// The engine is a library surface; this process only hosts its workers and telemetry.
		policy := engine.Limiter.Policy()
		zap.L().Info("MFA engine ready in library mode, no request transport is served",
			zap.String("profile", profile.Name),
			zap.Int("limiter_max_attempts", policy.MaxAttempts),
			zap.Duration("limiter_window", policy.Window))
	}

	if profile.Workers.AnyEnabled() {
		core.StartWorkers(ctx, profile, eventsManager, db, activityLogger, config, cache, appIdentity, engineMetrics)
	}

	<-ctx.Done()
	zap.L().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if eventsManager != nil {
		eventsManager.Close()
	}
	if cache != nil {
		if err = cache.Close(); err != nil {
			zap.L().Error("Failed to close cache", zap.Error(err))
		}
	}
	if err = shutdownTracing(shutdownCtx); err != nil {
		zap.L().Error("Failed to flush traces", zap.Error(err))
	}
}
