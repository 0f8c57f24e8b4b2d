package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/shopfloor/internal/config"
)

const keyTimerWorker = "shopfloor:timer:rate:%s:%s"

// TimerLimiter throttles timer mutations and serializes them per worker across instances.
// A nil or disabled limiter allows everything.
type TimerLimiter struct {
	bucket *TokenBucket
	locker *Locker
	cfg    *config.WorkflowConfigHolder
}

func NewTimerLimiter(client *redis.Client, cfg *config.WorkflowConfigHolder) *TimerLimiter {
	if client == nil {
		return nil
	}
	return &TimerLimiter{
		bucket: NewTokenBucket(client),
		locker: NewLocker(client),
		cfg:    cfg,
	}
}

func (l *TimerLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowWorker consumes one token from the worker's bucket.
func (l *TimerLimiter) AllowWorker(ctx context.Context, orgID, workerID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	limits := l.cfg.Get().RateLimit
	return l.bucket.Allow(ctx, fmt.Sprintf(keyTimerWorker, orgID, workerID), limits.Rate, limits.Burst)
}

// LockWorker takes the per-worker mutation lock. The returned release func is always safe to call.
func (l *TimerLimiter) LockWorker(ctx context.Context, orgID, workerID string) (func(context.Context), bool, error) {
	noop := func(context.Context) {}
	if !l.Enabled() {
		return noop, true, nil
	}

	release, ok, err := l.locker.Acquire(ctx, WorkerLockKey(orgID, workerID), l.lockTTL())
	if err != nil || !ok {
		return noop, ok, err
	}
	return func(releaseCtx context.Context) {
		_ = release(releaseCtx)
	}, true, nil
}

// WorkerLockKey names the lock that serializes one worker's timer mutations.
func WorkerLockKey(orgID, workerID string) string {
	return LockKey("timer", "worker", orgID, workerID)
}

func (l *TimerLimiter) lockTTL() time.Duration {
	ttl := l.cfg.Get().WorkerLockTTL
	if ttl <= 0 {
		return 5 * time.Second
	}
	return ttl
}
