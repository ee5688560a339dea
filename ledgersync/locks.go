package ledgersync

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"bitbucket.org/imfsl/ledger_backend/config"
)

const entityLockTTL = 30 * time.Second

// obtainEntityLock serializes derived-state writes (balance, risk) per
// entity, and batch runs per (integration, entity type). When Redis is
// unavailable the caller proceeds unlocked; idempotent full-replace
// upserts keep that safe, the lock only protects read-modify-write paths
// from interleaving.
func obtainEntityLock(ctx context.Context, lockType string, entityKey string) (release func(), obtained bool) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	noop := func() {}
	if locker == nil {
		logger.Warnf("redis lock not ready; proceeding without %s lock for %s", lockType, entityKey)
		return noop, false
	}

	lockKey := fmt.Sprintf("%s:%s", lockType, entityKey)
	var lock *redislock.Lock
	var err error
	backoff := redislock.LinearBackoff(100 * time.Millisecond)
	lock, err = locker.Obtain(ctx, lockKey, entityLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(backoff, 50),
	})
	if err == redislock.ErrNotObtained {
		logger.Warnf("could not obtain %s lock for %s; proceeding without lock", lockType, entityKey)
		return noop, false
	} else if err != nil {
		logger.Warnf("error obtaining %s lock for %s: %v; proceeding without lock", lockType, entityKey, err)
		return noop, false
	}

	return func() {
		_ = lock.Release(ctx)
	}, true
}
