package dispatcher

import (
	"context"
	"errors"
	"testing"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyDispatcher struct {
	failures int
	calls    int
	err      error
}

func (f *flakyDispatcher) Send(_ context.Context, _ string, _ string, _ models.Channel) (models.DispatchResult, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return models.DispatchResult{}, f.err
		}
		return models.DispatchResult{}, errors.New("gateway timeout")
	}
	return models.DispatchResult{Delivered: true, ProviderRef: "ref-1"}, nil
}

var testRetryConfig = models.DispatcherConfiguration{MaxRetries: 3, RetryDelayMs: 1, MaxElapsedMs: 1000}

func TestRetryingDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("should succeed after transient failures", func(t *testing.T) {
		next := &flakyDispatcher{failures: 2}
		d := NewRetryingDispatcher(next, testRetryConfig)

		result, err := d.Send(ctx, "a@b.io", "123456", models.ChannelEmail)
		require.NoError(t, err)
		assert.True(t, result.Delivered)
		assert.Equal(t, "ref-1", result.ProviderRef)
		assert.Equal(t, 3, next.calls)
	})

	t.Run("should report channel unavailable when retries are exhausted", func(t *testing.T) {
		next := &flakyDispatcher{failures: 100}
		d := NewRetryingDispatcher(next, testRetryConfig)

		_, err := d.Send(ctx, "a@b.io", "123456", models.ChannelEmail)
		assert.True(t, apierrors.Is(err, apierrors.ErrChannelUnavailable))
		assert.Equal(t, testRetryConfig.MaxRetries+1, next.calls)
	})

	t.Run("should not retry a missing route", func(t *testing.T) {
		next := &flakyDispatcher{failures: 100, err: apierrors.NewAPIError(503, apierrors.ErrChannelUnavailable)}
		d := NewRetryingDispatcher(next, testRetryConfig)

		_, err := d.Send(ctx, "a@b.io", "123456", models.ChannelEmail)
		assert.True(t, apierrors.Is(err, apierrors.ErrChannelUnavailable))
		assert.Equal(t, 1, next.calls)
	})

	t.Run("should stop when the context is cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		next := &flakyDispatcher{failures: 100}
		d := NewRetryingDispatcher(next, testRetryConfig)

		_, err := d.Send(cancelled, "a@b.io", "123456", models.ChannelEmail)
		assert.True(t, apierrors.Is(err, apierrors.ErrChannelUnavailable))
		assert.LessOrEqual(t, next.calls, 1)
	})
}

func TestRouter(t *testing.T) {
	email := &flakyDispatcher{}
	router := NewRouter(map[models.Channel]IDispatcher{models.ChannelEmail: email})

	result, err := router.Send(context.Background(), "a@b.io", "123456", models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	_, err = router.Send(context.Background(), "+14155550100", "123456", models.ChannelSMS)
	assert.True(t, apierrors.Is(err, apierrors.ErrChannelUnavailable))
}
