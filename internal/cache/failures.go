package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mfaengine/internal/configuration"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// reserveFailureScript trims the window, reads it and appends the new entry in one step, so
// concurrent reservations on a key each see the ones before them.
var reserveFailureScript = rueidis.NewLuaScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
local window = redis.call("ZRANGEBYSCORE", KEYS[1], ARGV[1], "+inf", "WITHSCORES")
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
local scores = {}
for i = 2, #window, 2 do
	scores[#scores + 1] = window[i]
end
return scores`)

func failuresKey(userID string, method string) string {
	return fmt.Sprintf(configuration.CacheMFAAttemptsKey, userID, method)
}

// AddMFAFailure appends a failure to the (user, method) sorted set scored by its time in milliseconds.
func (r *RueidisCache) AddMFAFailure(ctx context.Context, userID string, method string, at time.Time, ttl time.Duration) error {
	key := failuresKey(userID, method)

	for _, resp := range r.client.DoMulti(ctx,
		r.client.B().Zadd().Key(key).ScoreMember().ScoreMember(float64(at.UnixMilli()), uuid.NewString()).Build(),
		r.client.B().Pexpire().Key(key).Milliseconds(ttl.Milliseconds()).Build(),
	) {
		if err := resp.Error(); err != nil {
			return err
		}
	}
	return nil
}

// ListMFAFailures trims entries older than since and returns the rest oldest first.
func (r *RueidisCache) ListMFAFailures(ctx context.Context, userID string, method string, since time.Time) ([]time.Time, error) {
	key := failuresKey(userID, method)
	boundary := strconv.FormatInt(since.UnixMilli(), 10)

	resps := r.client.DoMulti(ctx,
		r.client.B().Zremrangebyscore().Key(key).Min("-inf").Max("("+boundary).Build(),
		r.client.B().Zrangebyscore().Key(key).Min(boundary).Max("+inf").Withscores().Build(),
	)
	if err := resps[0].Error(); err != nil {
		return nil, err
	}

	scores, err := resps[1].AsZScores()
	if rueidis.IsRedisNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	failures := make([]time.Time, len(scores))
	for i, s := range scores {
		failures[i] = time.UnixMilli(int64(s.Score)).UTC()
	}
	return failures, nil
}

// ReserveMFAFailure appends a pending failure at at and returns the token naming it together with
// the failures already in the window, oldest first.
func (r *RueidisCache) ReserveMFAFailure(
	ctx context.Context,
	userID string,
	method string,
	since time.Time,
	at time.Time,
	ttl time.Duration,
) (string, []time.Time, error) {
	token := uuid.NewString()

	scores, err := reserveFailureScript.Exec(ctx, r.client,
		[]string{failuresKey(userID, method)},
		[]string{
			strconv.FormatInt(since.UnixMilli(), 10),
			strconv.FormatInt(at.UnixMilli(), 10),
			token,
			strconv.FormatInt(ttl.Milliseconds(), 10),
		},
	).AsStrSlice()
	if err != nil {
		return "", nil, err
	}

	prior := make([]time.Time, 0, len(scores))
	for _, raw := range scores {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", nil, err
		}
		prior = append(prior, time.UnixMilli(int64(score)).UTC())
	}
	return token, prior, nil
}

// ReleaseMFAFailure drops a reservation whose attempt did not end as a failure.
func (r *RueidisCache) ReleaseMFAFailure(ctx context.Context, userID string, method string, token string) error {
	return r.client.Do(ctx, r.client.B().Zrem().Key(failuresKey(userID, method)).Member(token).Build()).Error()
}

// ResetMFAFailures clears the window. Called on successful verification.
func (r *RueidisCache) ResetMFAFailures(ctx context.Context, userID string, method string) error {
	return r.client.Do(ctx, r.client.B().Del().Key(failuresKey(userID, method)).Build()).Error()
}
