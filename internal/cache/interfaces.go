package cache

import (
	"context"
	"time"
)

type ICache interface {
	RegisterInstance(ctx context.Context, id string) error
	PruneInstances(ctx context.Context) error
	StartIdentityTicker(ctx context.Context, id string)

	TryAcquireLock(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string, owner string) error

	// AddMFAFailure records a failed verification for the (user, method) window.
	// The key expires after ttl without further failures.
	AddMFAFailure(ctx context.Context, userID string, method string, at time.Time, ttl time.Duration) error
	// ListMFAFailures returns failures at or after since, oldest first.
	ListMFAFailures(ctx context.Context, userID string, method string, since time.Time) ([]time.Time, error)
	// ReserveMFAFailure atomically appends a pending failure and returns the window before it.
	ReserveMFAFailure(ctx context.Context, userID string, method string, since time.Time, at time.Time, ttl time.Duration) (string, []time.Time, error)
	ReleaseMFAFailure(ctx context.Context, userID string, method string, token string) error
	ResetMFAFailures(ctx context.Context, userID string, method string) error

	Close() error
}
