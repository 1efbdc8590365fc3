package workers

import (
	"context"

	"mfaengine/internal/activity"
	"mfaengine/internal/events"
	"mfaengine/internal/messaging"

	"go.uber.org/zap"
)

// SecurityEventsWorker indexes published security events into the activity logger.
type SecurityEventsWorker struct {
	Subscriber     messaging.ISubscriber
	ActivityLogger activity.IActivityLogger
}

func (w *SecurityEventsWorker) Start(ctx context.Context) {
	messages, err := w.Subscriber.Subscribe(ctx)
	if err != nil {
		zap.L().Error("Failed to subscribe to security events", zap.Error(err))
		return
	}

	zap.L().Info("Starting worker", zap.String("worker", "security_events"))
	events.HandleSecurityEvents(ctx, w.ActivityLogger, messages)
	zap.L().Info("Worker shutting down", zap.String("worker", "security_events"))
}
