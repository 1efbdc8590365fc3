package core

import (
	"context"
	"fmt"
	"time"

	"mfaengine/internal/activity"
	c "mfaengine/internal/cache"
	"mfaengine/internal/configuration"
	"mfaengine/internal/helpers"
	"mfaengine/internal/methods"
	"mfaengine/internal/metrics"
	"mfaengine/internal/models"
	"mfaengine/internal/ratelimit"
	"mfaengine/internal/services"
	"mfaengine/internal/workers"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewLimiter picks the limiter backend. The cache backend falls back to the attempt records
// when no shared cache is configured.
func NewLimiter(config models.LimiterConfiguration, db *gorm.DB, cache c.ICache) *ratelimit.Limiter {
	policy := config.GetPolicy()

	if config.Backend == "redis" {
		if cache != nil {
			zap.L().Info("Limiter backed by shared cache")
			return ratelimit.NewLimiter(ratelimit.NewCacheStore(cache, policy), policy)
		}
		zap.L().Warn("Limiter backend redis requested without a cache, using database")
	}

	return ratelimit.NewLimiter(ratelimit.NewSQLStore(db), policy)
}

// NewMFAService assembles the engine with its strategies, limiter and risk scorer.
func NewMFAService(
	config models.Configuration,
	db *gorm.DB,
	cache c.ICache,
	eventsManager *EventsManager,
	activityLogger activity.IActivityLogger,
	m *metrics.Metrics,
) (*services.MFAService, error) {
	settings := config.MFA.GetMFASettings()
	cipher, err := helpers.NewAESCipher(settings.EncryptionKey, settings.RetiredKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret cipher: %w", err)
	}

	sender, err := NewDispatcher(config.Dispatcher, settings.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	registry := methods.NewRegistry(
		&methods.TOTPStrategy{
			DB:      db,
			Cipher:  cipher,
			Options: helpers.TOTPOptionsFromSettings(settings),
		},
		&methods.OTPStrategy{
			DB:          db,
			Kind:        models.MFAMethodSMS,
			Dispatcher:  sender,
			CodeLength:  settings.OTPLength,
			TTL:         settings.ChallengeTTL,
			MaxAttempts: settings.ChallengeMaxAttempts,
		},
		&methods.OTPStrategy{
			DB:          db,
			Kind:        models.MFAMethodEmail,
			Dispatcher:  sender,
			CodeLength:  settings.OTPLength,
			TTL:         settings.ChallengeTTL,
			MaxAttempts: settings.ChallengeMaxAttempts,
		},
	)

	limiter := NewLimiter(config.Limiter, db, cache)

	service := &services.MFAService{
		DB:             db,
		Settings:       settings,
		Cipher:         cipher,
		Registry:       registry,
		Limiter:        limiter,
		Risk:           ratelimit.NewRiskScorer(db, limiter.Policy().Window),
		ActivityLogger: activityLogger,
		Metrics:        m,
	}
	if eventsManager != nil {
		service.Publisher = eventsManager.GetPublisher(configuration.EventsSecurityEvents)
	}

	return service, nil
}

func StartWorkers(
	ctx context.Context,
	profile models.Profile,
	eventsManager *EventsManager,
	db *gorm.DB,
	activityLogger activity.IActivityLogger,
	config models.Configuration,
	cache c.ICache,
	appIdentity string,
	m *metrics.Metrics,
) {
	startWorker(ctx, profile.Workers.GarbageCollector, "garbage_collector", cache, appIdentity, func(ctx context.Context) {
		worker := &workers.GarbageCollectorWorker{
			DB:               db,
			ActivityLogger:   activityLogger,
			RunInterval:      time.Duration(config.Workers.GarbageCollectorIntervalSeconds) * time.Second,
			SetupWindow:      time.Duration(config.MFA.SetupWindowMinutes) * time.Minute,
			AttemptRetention: time.Duration(config.Workers.AttemptRetentionDays) * 24 * time.Hour,
			LimiterWindow:    config.Limiter.GetPolicy().Window,
			Metrics:          m,
		}
		worker.Start(ctx)
	})

	if eventsManager == nil {
		return
	}

	startWorker(ctx, profile.Workers.SecurityEvents, "security_events", cache, appIdentity, func(ctx context.Context) {
		subscriber := eventsManager.GetSubscriber(configuration.EventsSecurityEvents)
		if subscriber == nil {
			return
		}
		worker := &workers.SecurityEventsWorker{
			Subscriber:     subscriber,
			ActivityLogger: activityLogger,
		}
		worker.Start(ctx)
	})
}

func startWorker(
	ctx context.Context,
	mode models.WorkerMode,
	workerName string,
	cache c.ICache,
	appIdentity string,
	runWorker func(context.Context),
) {
	if mode == models.WorkerModeDisabled {
		return
	}

	if mode == models.WorkerModeSingleton && cache != nil {
		go startSingletonWorker(ctx, cache, appIdentity, workerName, runWorker)
		return
	}

	if mode == models.WorkerModeSingleton {
		zap.L().Warn("No cache for singleton lock, running worker on this instance", zap.String("worker", workerName))
	}
	go runWorker(ctx)
	zap.L().Info("Started worker", zap.String("worker", workerName))
}

// startSingletonWorker runs the worker only while this instance holds its cache lock. The lock
// is refreshed on every tick; losing it stops the worker until it can be taken again.
func startSingletonWorker(
	ctx context.Context,
	cache c.ICache,
	instanceID string,
	workerName string,
	runWorker func(context.Context),
) {
	lockKey := fmt.Sprintf(configuration.CacheAppWorkerLockKey, workerName)
	logger := zap.L().With(zap.String("worker", workerName), zap.String("instance", instanceID))

	ticker := time.NewTicker(configuration.CacheAppWorkerLockRefresh)
	defer ticker.Stop()

	var stop context.CancelFunc
	defer func() {
		if stop == nil {
			return
		}
		stop()
		// ctx is already done here.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.ReleaseLock(releaseCtx, lockKey, instanceID); err != nil {
			logger.Warn("Failed to release worker lock", zap.Error(err))
		}
	}()

	for {
		if stop == nil {
			acquired, err := cache.TryAcquireLock(ctx, lockKey, instanceID, configuration.CacheAppWorkerLockTTL)
			if err != nil {
				logger.Error("Failed to acquire worker lock", zap.Error(err))
			}
			if acquired {
				logger.Info("Acquired worker lock, starting worker")
				var workerCtx context.Context
				workerCtx, stop = context.WithCancel(ctx)
				go runWorker(workerCtx)
			}
		} else {
			refreshed, err := cache.RefreshLock(ctx, lockKey, instanceID, configuration.CacheAppWorkerLockTTL)
			if err != nil || !refreshed {
				logger.Warn("Lost worker lock, stopping worker", zap.Error(err))
				stop()
				stop = nil
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
