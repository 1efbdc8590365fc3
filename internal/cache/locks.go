package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/rueidis"
)

// Both scripts act only when the lock is still held by ARGV[1].
var (
	refreshLockScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLockScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// TryAcquireLock takes key for owner with SET NX EX. It reports false when another owner holds it.
func (r *RueidisCache) TryAcquireLock(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error) {
	err := r.client.Do(ctx, r.client.B().Set().Key(key).Value(owner).Nx().Ex(ttl).Build()).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RefreshLock extends the lock TTL if owner still holds it.
func (r *RueidisCache) RefreshLock(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshLockScript.Exec(ctx, r.client,
		[]string{key}, []string{owner, strconv.FormatInt(ttl.Milliseconds(), 10)},
	).AsInt64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseLock deletes the lock if owner still holds it, letting another instance take over
// without waiting for the TTL.
func (r *RueidisCache) ReleaseLock(ctx context.Context, key string, owner string) error {
	return releaseLockScript.Exec(ctx, r.client, []string{key}, []string{owner}).Error()
}
