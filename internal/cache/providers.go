package cache

import (
	"fmt"

	"mfaengine/internal/models"
)

func NewRedisCache(config models.RedisCacheConfiguration) (*RueidisCache, error) {
	return newRueidisCache(connection{
		hosts:         config.Hosts,
		password:      config.Password,
		tlsEnabled:    config.TLSEnabled,
		tlsServerName: config.TLSServerName,
		provider:      "redis",
	})
}

func NewValkeyCache(config models.ValkeyCacheConfiguration) (*RueidisCache, error) {
	return newRueidisCache(connection{
		hosts:         config.Hosts,
		password:      config.Password,
		tlsEnabled:    config.TLSEnabled,
		tlsServerName: config.TLSServerName,
		provider:      "valkey",
	})
}

// NewCache returns nil when no shared cache is configured.
func NewCache(config models.CacheConfiguration) (ICache, error) {
	switch config.Type {
	case "", "none":
		return nil, nil
	case "redis":
		c, err := NewRedisCache(*config.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "valkey":
		c, err := NewValkeyCache(*config.Valkey)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache type %q", config.Type)
	}
}
