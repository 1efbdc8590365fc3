package dispatcher

import (
	"context"
	"errors"
	"time"

	apierrors "mfaengine/internal/errors"
	"mfaengine/internal/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var errNotDelivered = errors.New("message not accepted by transport")

// RetryingDispatcher retries transient delivery failures with exponential backoff.
// After the budget is spent the channel is reported unavailable.
type RetryingDispatcher struct {
	next       IDispatcher
	maxRetries int
	delay      time.Duration
	maxElapsed time.Duration
}

func NewRetryingDispatcher(next IDispatcher, config models.DispatcherConfiguration) *RetryingDispatcher {
	return &RetryingDispatcher{
		next:       next,
		maxRetries: config.MaxRetries,
		delay:      time.Duration(config.RetryDelayMs) * time.Millisecond,
		maxElapsed: time.Duration(config.MaxElapsedMs) * time.Millisecond,
	}
}

func (d *RetryingDispatcher) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.delay
	b.MaxInterval = d.maxElapsed
	b.MaxElapsedTime = d.maxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.maxRetries)), ctx)
}

func (d *RetryingDispatcher) Send(ctx context.Context, target string, code string, channel models.Channel) (models.DispatchResult, error) {
	var result models.DispatchResult

	operation := func() error {
		r, err := d.next.Send(ctx, target, code, channel)
		if err != nil {
			if apierrors.Is(err, apierrors.ErrChannelUnavailable) {
				return backoff.Permanent(err)
			}
			return err
		}
		if !r.Delivered {
			return errNotDelivered
		}
		result = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		zap.L().Warn("Dispatch failed, retrying",
			zap.String("channel", string(channel)),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, d.policy(ctx), notify); err != nil {
		zap.L().Error("Dispatch gave up", zap.String("channel", string(channel)), zap.Error(err))
		return models.DispatchResult{}, apierrors.Wrap(503, apierrors.ErrChannelUnavailable, err)
	}

	return result, nil
}
