package cache

import (
	"context"
	"strconv"
	"time"

	"mfaengine/internal/configuration"

	"go.uber.org/zap"
)

// RegisterInstance marks id as alive now in the instance registry.
func (r *RueidisCache) RegisterInstance(ctx context.Context, id string) error {
	now := float64(time.Now().Unix())
	return r.client.Do(ctx,
		r.client.B().Zadd().Key(configuration.CacheAppIdentityKey).ScoreMember().ScoreMember(now, id).Build(),
	).Error()
}

// PruneInstances drops instances that have not refreshed within the identity lifetime.
func (r *RueidisCache) PruneInstances(ctx context.Context) error {
	cutoff := time.Now().Add(-configuration.CacheAppIdentityLifetime).Unix()
	return r.client.Do(ctx,
		r.client.B().Zremrangebyscore().Key(configuration.CacheAppIdentityKey).
			Min("-inf").Max(strconv.FormatInt(cutoff, 10)).Build(),
	).Error()
}

// StartIdentityTicker keeps this engine instance registered until ctx is cancelled.
func (r *RueidisCache) StartIdentityTicker(ctx context.Context, id string) {
	if err := r.RegisterInstance(ctx, id); err != nil {
		zap.L().Fatal("Failed to register engine instance", zap.String("instance", id), zap.Error(err))
	}

	ticker := time.NewTicker(configuration.CacheAppIdentityRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RegisterInstance(ctx, id); err != nil {
				zap.L().Error("Failed to refresh engine instance", zap.String("instance", id), zap.Error(err))
			}
			if err := r.PruneInstances(ctx); err != nil {
				zap.L().Error("Failed to prune engine instances", zap.Error(err))
			}
		}
	}
}
