package ratelimit

import (
	"context"
	"time"

	"mfaengine/internal/models"
	"mfaengine/internal/sql"

	"gorm.io/gorm"
)

// DefaultReservationLease bounds how long a reservation lost to a crash keeps counting.
const DefaultReservationLease = 30 * time.Second

// SQLStore reads the window straight from the attempt records. Recording and resetting are
// implicit: every attempt is already appended by the caller and a success closes the window.
// Reservations go through the per-key gate row.
type SQLStore struct {
	DB    *gorm.DB
	Lease time.Duration
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{DB: db, Lease: DefaultReservationLease}
}

func (s *SQLStore) Failures(ctx context.Context, key Key, since time.Time) ([]time.Time, error) {
	return sql.FailuresSince(s.DB.WithContext(ctx), key.UserID, key.Method, since)
}

func (s *SQLStore) Reserve(ctx context.Context, key Key, since time.Time, at time.Time) (string, []time.Time, error) {
	prior, err := sql.ReserveAttempt(s.DB.WithContext(ctx), key.UserID, key.Method, since, at, s.Lease)
	return "", prior, err
}

// Commit only takes the attempt off the gate: a counted failure is already in the attempt records.
func (s *SQLStore) Commit(ctx context.Context, key Key, _ string, _ bool) error {
	return sql.ReleaseAttempt(s.DB.WithContext(ctx), key.UserID, key.Method)
}

func (s *SQLStore) RecordFailure(_ context.Context, _ Key, _ time.Time) error {
	return nil
}

func (s *SQLStore) Reset(_ context.Context, _ Key) error {
	return nil
}

// FailureCounter is the subset of the shared cache used as a limiter backend.
type FailureCounter interface {
	AddMFAFailure(ctx context.Context, userID string, method string, at time.Time, ttl time.Duration) error
	ListMFAFailures(ctx context.Context, userID string, method string, since time.Time) ([]time.Time, error)
	ReserveMFAFailure(ctx context.Context, userID string, method string, since time.Time, at time.Time, ttl time.Duration) (string, []time.Time, error)
	ReleaseMFAFailure(ctx context.Context, userID string, method string, token string) error
	ResetMFAFailures(ctx context.Context, userID string, method string) error
}

// CacheStore keeps the window in the shared cache so several engine instances see one counter.
type CacheStore struct {
	counter FailureCounter
	ttl     time.Duration
}

// NewCacheStore keeps keys alive long enough to cover both the window and the longest cooldown.
func NewCacheStore(counter FailureCounter, policy models.LimiterPolicy) *CacheStore {
	return &CacheStore{counter: counter, ttl: policy.Window + policy.MaxBackoff}
}

func (s *CacheStore) Failures(ctx context.Context, key Key, since time.Time) ([]time.Time, error) {
	return s.counter.ListMFAFailures(ctx, key.UserID.String(), string(key.Method), since)
}

func (s *CacheStore) Reserve(ctx context.Context, key Key, since time.Time, at time.Time) (string, []time.Time, error) {
	return s.counter.ReserveMFAFailure(ctx, key.UserID.String(), string(key.Method), since, at, s.ttl)
}

// Commit keeps a counted reservation as the failure itself and drops the others.
func (s *CacheStore) Commit(ctx context.Context, key Key, token string, counted bool) error {
	if counted {
		return nil
	}
	return s.counter.ReleaseMFAFailure(ctx, key.UserID.String(), string(key.Method), token)
}

func (s *CacheStore) RecordFailure(ctx context.Context, key Key, at time.Time) error {
	return s.counter.AddMFAFailure(ctx, key.UserID.String(), string(key.Method), at, s.ttl)
}

func (s *CacheStore) Reset(ctx context.Context, key Key) error {
	return s.counter.ResetMFAFailures(ctx, key.UserID.String(), string(key.Method))
}
