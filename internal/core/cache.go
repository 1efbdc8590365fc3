package core

import (
	c "mfaengine/internal/cache"
	"mfaengine/internal/models"

	"go.uber.org/zap"
)

// NewCache connects the shared cache. It returns nil when none is configured.
func NewCache(config models.CacheConfiguration) c.ICache {
	cache, err := c.NewCache(config)
	if err != nil {
		zap.L().Fatal("Failed to connect to cache", zap.String("type", config.Type), zap.Error(err))
	}
	if cache == nil {
		zap.L().Info("No shared cache configured")
		return nil
	}
	zap.L().Info("Cache ready", zap.String("type", config.Type))
	return cache
}
