// Package distlock serializes read-modify-write cycles on a single record.
//
// A Locker hands out one lock per key (normally the record's storage key).
// Redis is preferred because it works across hosts; PostgreSQL advisory
// locks are used when the store is Postgres and Redis is absent; the local
// locker only protects a single process.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTimeout is returned when a lock could not be acquired before the wait
// limit or the context deadline.
var ErrTimeout = errors.New("distlock: timed out waiting for lock")

// DistLock is a single non-blocking lock attempt on one key.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Locker hands out blocking per-key locks. The returned release func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Options tune lock waiting.
type Options struct {
	TTL         time.Duration // lease for backends that expire locks
	Wait        time.Duration // max time to wait for a contended lock
	RetryPeriod time.Duration // poll interval while waiting
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.Wait <= 0 {
		o.Wait = 5 * time.Second
	}
	if o.RetryPeriod <= 0 {
		o.RetryPeriod = 25 * time.Millisecond
	}
	return o
}

// NewLocker picks the best available backend.
// If redisClient is non-nil, uses Redis (preferred for cross-host locking).
// Otherwise falls back to PostgreSQL advisory locks, then to process-local locks.
func NewLocker(redisClient *redis.Client, db *sql.DB, opts Options) Locker {
	opts = opts.withDefaults()
	if redisClient != nil {
		return &pollingLocker{opts: opts, newLock: func(key string) DistLock {
			return NewRedisLock(redisClient, key, opts.TTL)
		}}
	}
	if db != nil {
		return &pollingLocker{opts: opts, newLock: func(key string) DistLock {
			return NewPGAdvisoryLock(db, key)
		}}
	}
	return NewLocalLocker()
}

// pollingLocker turns non-blocking DistLock attempts into a blocking Lock.
type pollingLocker struct {
	opts    Options
	newLock func(key string) DistLock
}

func (p *pollingLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock := p.newLock(key)

	waitCtx, cancel := context.WithTimeout(ctx, p.opts.Wait)
	defer cancel()

	ticker := time.NewTicker(p.opts.RetryPeriod)
	defer ticker.Stop()

	for {
		ok, err := lock.Acquire(waitCtx)
		if err != nil {
			releaseDetached(lock)
			if waitCtx.Err() != nil {
				return nil, ErrTimeout
			}
			return nil, err
		}
		if ok {
			return func() { releaseDetached(lock) }, nil
		}
		select {
		case <-waitCtx.Done():
			// Frees anything a failed attempt holds, such as a pinned connection.
			releaseDetached(lock)
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}

// releaseDetached releases with its own deadline so a cancelled request
// context cannot strand the lock.
func releaseDetached(lock DistLock) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = lock.Release(ctx)
}
