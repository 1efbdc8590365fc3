package cache

import (
	"crypto/tls"
	"fmt"

	"github.com/redis/rueidis"
)

// RueidisCache backs the shared engine state: limiter failure windows, worker locks and the
// instance registry. It works against redis and valkey alike.
type RueidisCache struct {
	client rueidis.Client
}

type connection struct {
	hosts         []string
	password      string
	tlsEnabled    bool
	tlsServerName string
	provider      string
}

func newRueidisCache(conn connection) (*RueidisCache, error) {
	option := rueidis.ClientOption{
		InitAddress: conn.hosts,
		Password:    conn.password,
	}
	if conn.tlsEnabled {
		option.TLSConfig = &tls.Config{
			ServerName: conn.tlsServerName,
			MinVersion: tls.VersionTLS12,
		}
	}

	client, err := rueidis.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", conn.provider, err)
	}
	return &RueidisCache{client: client}, nil
}

// NewRueidisCacheFromClient wraps an existing client, mainly for tests against a real server.
func NewRueidisCacheFromClient(client rueidis.Client) *RueidisCache {
	return &RueidisCache{client: client}
}

func (r *RueidisCache) Close() error {
	r.client.Close()
	return nil
}
