package ratelimit

import (
	"context"
	"time"

	"mfaengine/internal/models"

	"github.com/google/uuid"
)

// Key identifies one sliding window.
type Key struct {
	UserID uuid.UUID
	Method models.MFAMethod
}

// Store holds the failure timestamps of a key, oldest first, counting only failures
// recorded after the key's latest success.
type Store interface {
	Failures(ctx context.Context, key Key, since time.Time) ([]time.Time, error)
	// Reserve holds a pending failure for an attempt and returns what preceded it in the window,
	// pending failures included. Reservations on one key are serialized.
	Reserve(ctx context.Context, key Key, since time.Time, at time.Time) (token string, prior []time.Time, err error)
	// Commit settles a reservation. counted reports whether the attempt ended as a failure.
	Commit(ctx context.Context, key Key, token string, counted bool) error
	RecordFailure(ctx context.Context, key Key, at time.Time) error
	Reset(ctx context.Context, key Key) error
}

// Decision is the limiter verdict for one attempt.
type Decision struct {
	Limited       bool
	Failures      int
	NextAttemptIn time.Duration
}

type Limiter struct {
	store  Store
	policy models.LimiterPolicy
}

func NewLimiter(store Store, policy models.LimiterPolicy) *Limiter {
	return &Limiter{store: store, policy: policy}
}

func (l *Limiter) Policy() models.LimiterPolicy {
	return l.policy
}

// Check decides whether an attempt made at now may reach the method strategy.
func (l *Limiter) Check(ctx context.Context, key Key, now time.Time) (Decision, error) {
	failures, err := l.store.Failures(ctx, key, now.Add(-l.policy.Window))
	if err != nil {
		return Decision{}, err
	}
	return l.decide(failures, now), nil
}

// Reservation is an attempt admitted or refused by Reserve whose outcome is still open.
type Reservation struct {
	Key      Key
	Decision Decision
	token    string
}

// Reserve decides on an attempt made at now and holds its place in the window until Settle.
// Unlike Check, concurrent attempts on one key each see the others, so no more than the policy
// allows can reach the method strategy.
func (l *Limiter) Reserve(ctx context.Context, key Key, now time.Time) (*Reservation, error) {
	token, prior, err := l.store.Reserve(ctx, key, now.Add(-l.policy.Window), now)
	if err != nil {
		return nil, err
	}
	return &Reservation{Key: key, Decision: l.decide(prior, now), token: token}, nil
}

// Settle closes a reservation with the recorded outcome. A success also resets the window.
func (l *Limiter) Settle(ctx context.Context, r *Reservation, outcome models.AttemptOutcome) error {
	if err := l.store.Commit(ctx, r.Key, r.token, outcome.CountsAsFailure()); err != nil {
		return err
	}
	if outcome == models.OutcomeVerified {
		return l.store.Reset(ctx, r.Key)
	}
	return nil
}

// Release drops a reservation whose attempt never produced an outcome.
func (l *Limiter) Release(ctx context.Context, r *Reservation) error {
	return l.store.Commit(ctx, r.Key, r.token, false)
}

func (l *Limiter) RecordFailure(ctx context.Context, key Key, at time.Time) error {
	return l.store.RecordFailure(ctx, key, at)
}

func (l *Limiter) Reset(ctx context.Context, key Key) error {
	return l.store.Reset(ctx, key)
}

// decide releases a limited key at the later of two instants: when the window no longer holds
// max failures, and when the cooldown after the latest failure ends. The cooldown doubles for
// every failure past the threshold, so the wait never shrinks while failures keep arriving.
func (l *Limiter) decide(failures []time.Time, now time.Time) Decision {
	n := len(failures)
	if n < l.policy.MaxAttempts {
		return Decision{Failures: n}
	}

	windowRelease := failures[n-l.policy.MaxAttempts].Add(l.policy.Window).Sub(now)
	cooldownRelease := failures[n-1].Add(l.cooldown(n - l.policy.MaxAttempts)).Sub(now)

	next := max(windowRelease, cooldownRelease)
	if next <= 0 {
		return Decision{Failures: n}
	}

	return Decision{Limited: true, Failures: n, NextAttemptIn: next.Round(time.Second)}
}

func (l *Limiter) cooldown(excess int) time.Duration {
	if excess >= 32 {
		return l.policy.MaxBackoff
	}
	backoff := l.policy.BaseBackoff << excess
	if backoff <= 0 || backoff > l.policy.MaxBackoff {
		return l.policy.MaxBackoff
	}
	return backoff
}
