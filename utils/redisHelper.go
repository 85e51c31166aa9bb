package utils

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// BestEffortLock tries to obtain a short redis lock on key and returns a release func.
// The lock is an optimisation only: when redis is not configured, busy or failing,
// the caller proceeds unlocked and correctness rests on the database constraints.
func BestEffortLock(ctx context.Context, key string, ttl time.Duration, moduleName string, functionName string) (release func(), obtained bool) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	noop := func() {}
	if locker == nil {
		return noop, false
	}

	// Wait briefly for a concurrent holder instead of failing immediately.
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 8),
	}
	lock, err := locker.Obtain(ctx, key, ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": functionName,
			"lock_key": key,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return noop, false
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining redis lock", key, err)
		return noop, false
	}

	return func() {
		// The request context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if releaseErr := lock.Release(releaseCtx); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "failed to release redis lock", key, releaseErr)
		}
	}, true
}
