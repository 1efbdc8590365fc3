package workers

import (
	"context"
	"time"

	"mfaengine/internal/activity"
	"mfaengine/internal/configuration"
	"mfaengine/internal/metrics"
	"mfaengine/internal/models"
	"mfaengine/internal/sql"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GarbageCollectorWorker reclaims expired challenges, abandoned setups and old attempt records.
type GarbageCollectorWorker struct {
	DB               *gorm.DB
	ActivityLogger   activity.IActivityLogger
	RunInterval      time.Duration
	SetupWindow      time.Duration
	AttemptRetention time.Duration
	LimiterWindow    time.Duration
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

func (w *GarbageCollectorWorker) Start(ctx context.Context) {
	w.cycle().every(ctx, w.RunInterval)
}

// RunOnce executes a single cycle and returns the per-task counts in task order.
func (w *GarbageCollectorWorker) RunOnce(ctx context.Context) []int64 {
	return w.cycle().run(ctx)
}

func (w *GarbageCollectorWorker) cycle() cycle {
	return cycle{
		worker:  "garbage_collector",
		metrics: w.Metrics,
		tasks: []WorkerTask{
			{Name: "expired_challenges", Fn: w.cleanupExpiredChallenges},
			{Name: "abandoned_setups", Fn: w.cleanupAbandonedSetups},
			{Name: "old_attempts", Fn: w.pruneAttempts},
			{Name: "idle_gates", Fn: w.pruneIdleGates},
		},
	}
}

func (w *GarbageCollectorWorker) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now().UTC()
}

// cleanupExpiredChallenges hard-deletes challenges past their TTL or already consumed.
func (w *GarbageCollectorWorker) cleanupExpiredChallenges(ctx context.Context) (int64, error) {
	deleted, err := sql.DeleteExpiredChallenges(w.DB.WithContext(ctx), w.now(), configuration.GCBatchSize)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		zap.L().Debug("Deleted expired challenges", zap.Int64("count", deleted))
	}

	return deleted, nil
}

// cleanupAbandonedSetups removes configs never verified within the setup window.
func (w *GarbageCollectorWorker) cleanupAbandonedSetups(ctx context.Context) (int64, error) {
	threshold := w.now().Add(-w.SetupWindow)

	deleted, err := sql.DeleteStaleUnverified(w.DB.WithContext(ctx), threshold, configuration.GCBatchSize)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, nil
	}

	zap.L().Debug("Deleted abandoned MFA setups", zap.Int64("count", deleted))

	if w.ActivityLogger != nil {
		action := models.Activity{
			Message: activity.MFASetupAbandoned,
			Object:  map[string]int64{"deleted": deleted},
			Filter: activity.NewLogFilterAt(map[string]string{
				"action":      activity.MFASetupAbandoned,
				"object_type": activity.ObjectTypeMFAConfig,
			}, w.now()),
		}
		if err = w.ActivityLogger.Send(action); err != nil {
			zap.L().Error("Failed to log abandoned setup cleanup", zap.Error(err))
		}
	}

	return deleted, nil
}

// pruneAttempts deletes attempt records past retention. Records inside the limiter window are
// always kept since they are the limiter's counters.
func (w *GarbageCollectorWorker) pruneAttempts(ctx context.Context) (int64, error) {
	if w.AttemptRetention <= 0 {
		return 0, nil
	}

	retention := max(w.AttemptRetention, w.LimiterWindow)
	deleted, err := sql.DeleteAttemptsBefore(w.DB.WithContext(ctx), w.now().Add(-retention), configuration.GCBatchSize)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		zap.L().Debug("Pruned verification attempts", zap.Int64("count", deleted))
	}

	return deleted, nil
}

// pruneIdleGates drops limiter gates untouched for a full window. Their failures live in the
// attempt records, so a gate is recreated empty on the next attempt.
func (w *GarbageCollectorWorker) pruneIdleGates(ctx context.Context) (int64, error) {
	deleted, err := sql.DeleteIdleGates(w.DB.WithContext(ctx), w.now().Add(-w.LimiterWindow), configuration.GCBatchSize)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		zap.L().Debug("Pruned idle limiter gates", zap.Int64("count", deleted))
	}

	return deleted, nil
}
