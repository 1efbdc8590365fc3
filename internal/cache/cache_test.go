//go:build integration

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"mfaengine/internal/configuration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestCache(t *testing.T) *RueidisCache {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := newRueidisCache(connection{hosts: []string{endpoint}, provider: "redis"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRueidisCache_MFAFailures(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i := range 3 {
		require.NoError(t, c.AddMFAFailure(ctx, "user", "totp", now.Add(time.Duration(i-5)*time.Minute), time.Hour))
	}

	t.Run("should return failures inside the window oldest first", func(t *testing.T) {
		failures, err := c.ListMFAFailures(ctx, "user", "totp", now.Add(-4*time.Minute-time.Second))
		require.NoError(t, err)
		require.Len(t, failures, 2)
		assert.True(t, failures[0].Before(failures[1]))
		assert.Equal(t, now.Add(-4*time.Minute), failures[0])
	})

	t.Run("should scope failures by method", func(t *testing.T) {
		failures, err := c.ListMFAFailures(ctx, "user", "sms", now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, failures)
	})

	t.Run("should clear failures on reset", func(t *testing.T) {
		require.NoError(t, c.ResetMFAFailures(ctx, "user", "totp"))
		failures, err := c.ListMFAFailures(ctx, "user", "totp", now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, failures)
	})
}

func TestRueidisCache_ReserveMFAFailure(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("should hand every concurrent reservation a distinct prefix", func(t *testing.T) {
		const workers = 20
		seen := make(chan int, workers)

		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, prior, err := c.ReserveMFAFailure(ctx, "burst", "totp", now.Add(-time.Minute), now, time.Hour)
				assert.NoError(t, err)
				seen <- len(prior)
			}()
		}
		wg.Wait()
		close(seen)

		counts := map[int]bool{}
		for n := range seen {
			assert.False(t, counts[n], "two reservations saw %d failures", n)
			counts[n] = true
		}
		assert.Len(t, counts, workers)
	})

	t.Run("should drop a released reservation", func(t *testing.T) {
		token, prior, err := c.ReserveMFAFailure(ctx, "release", "totp", now.Add(-time.Minute), now, time.Hour)
		require.NoError(t, err)
		assert.Empty(t, prior)

		require.NoError(t, c.ReleaseMFAFailure(ctx, "release", "totp", token))
		failures, err := c.ListMFAFailures(ctx, "release", "totp", now.Add(-time.Minute))
		require.NoError(t, err)
		assert.Empty(t, failures)
	})
}

func TestRueidisCache_Locks(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	acquired, err := c.TryAcquireLock(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = c.TryAcquireLock(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	t.Run("should refresh only for the owner", func(t *testing.T) {
		refreshed, err := c.RefreshLock(ctx, "lock", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, refreshed)

		refreshed, err = c.RefreshLock(ctx, "lock", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, refreshed)
	})

	t.Run("should release only for the owner", func(t *testing.T) {
		require.NoError(t, c.ReleaseLock(ctx, "lock", "b"))
		acquired, err := c.TryAcquireLock(ctx, "lock", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, acquired)

		require.NoError(t, c.ReleaseLock(ctx, "lock", "a"))
		acquired, err = c.TryAcquireLock(ctx, "lock", "b", time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}

func TestRueidisCache_Instances(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.RegisterInstance(ctx, "engine-1"))
	require.NoError(t, c.PruneInstances(ctx))

	members, err := c.client.Do(ctx, c.client.B().Zrange().Key(configuration.CacheAppIdentityKey).Min("0").Max("-1").Build()).AsStrSlice()
	require.NoError(t, err)
	assert.Equal(t, []string{"engine-1"}, members)
}
