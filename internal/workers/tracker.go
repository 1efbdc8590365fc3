package workers

import (
	"context"
	"time"

	"mfaengine/internal/metrics"

	"go.uber.org/zap"
)

// WorkerTask is one reclamation step of a worker cycle. Fn returns how many rows it removed.
type WorkerTask struct {
	Name string
	Fn   func(ctx context.Context) (int64, error)
}

// cycle runs a fixed task list in order and reports each task's result. A failing task is
// logged and counted, and the remaining tasks still run.
type cycle struct {
	worker  string
	tasks   []WorkerTask
	metrics *metrics.Metrics
}

func (c cycle) run(ctx context.Context) []int64 {
	started := time.Now()
	counts := make([]int64, len(c.tasks))
	fields := make([]zap.Field, 0, len(c.tasks)+2)
	fields = append(fields, zap.String("worker", c.worker))

	for i, task := range c.tasks {
		if ctx.Err() != nil {
			break
		}

		count, err := task.Fn(ctx)
		if err != nil {
			zap.L().Error("Worker task failed",
				zap.String("worker", c.worker),
				zap.String("task", task.Name),
				zap.Error(err))
		}
		counts[i] = count
		c.metrics.ObserveWorkerTask(c.worker, task.Name, count, err)
		fields = append(fields, zap.Int64(task.Name, count))
	}

	elapsed := time.Since(started)
	c.metrics.ObserveWorkerCycle(c.worker, elapsed)
	zap.L().Info("Worker cycle complete", append(fields, zap.Duration("duration", elapsed))...)

	return counts
}

// every runs one cycle immediately and then one per interval until ctx is cancelled.
func (c cycle) every(ctx context.Context, interval time.Duration) {
	zap.L().Info("Starting worker",
		zap.String("worker", c.worker),
		zap.Duration("interval", interval))

	c.run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Worker shutting down", zap.String("worker", c.worker))
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}
