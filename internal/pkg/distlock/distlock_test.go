package distlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestRedisLockAcquireRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "waitlist_user_a@x.com", time.Minute)
	b := NewRedisLock(client, "waitlist_user_a@x.com", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:waitlist_user_a@x.com"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// Releasing with the wrong owner is a no-op.
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:waitlist_user_a@x.com"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:waitlist_user_a@x.com"))
}

func TestRedisLockExtend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "k", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, time.Minute))
	assert.Greater(t, mr.TTL("lock:k"), 30*time.Second)
}

func TestRedisLockerSerializes(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewLocker(client, nil, Options{TTL: time.Minute, Wait: 5 * time.Second, RetryPeriod: time.Millisecond})
	assertSerializes(t, locker)
}

func TestRedisLockerTimeout(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewLocker(client, nil, Options{TTL: time.Minute, Wait: 30 * time.Millisecond, RetryPeriod: 5 * time.Millisecond})

	release, err := locker.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer release()

	_, err = locker.Lock(context.Background(), "busy")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLocalLockerSerializes(t *testing.T) {
	assertSerializes(t, NewLocalLocker())
}

func TestLocalLockerContextCancel(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrTimeout)

	release()
	release() // idempotent

	release2, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	release2()

	locker.mu.Lock()
	assert.Empty(t, locker.locks, "entries are dropped when unreferenced")
	locker.mu.Unlock()
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	locker := NewLocalLocker()
	ra, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer ra()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rb, err := locker.Lock(ctx, "b")
	require.NoError(t, err, "different keys must not contend")
	rb()
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "waitlist_user_a@x.com")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGLockerTimeoutReturnsConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 100; i++ {
		mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))
	}

	locker := NewLocker(nil, db, Options{Wait: 40 * time.Millisecond, RetryPeriod: 5 * time.Millisecond})
	_, err = locker.Lock(context.Background(), "waitlist_user_a@x.com")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, db.Stats().InUse, "pinned connection must go back to the pool")
}

func TestPGAdvisoryLockReleaseWithoutAcquire(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "k")
	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	// No unlock is issued for a lock that was never held.
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 0, db.Stats().InUse)
}

func TestPGAdvisoryLockIDStable(t *testing.T) {
	a := NewPGAdvisoryLock(nil, "same-key")
	b := NewPGAdvisoryLock(nil, "same-key")
	c := NewPGAdvisoryLock(nil, "other-key")
	assert.Equal(t, a.lockID, b.lockID)
	assert.NotEqual(t, a.lockID, c.lockID)
}

// assertSerializes runs concurrent read-modify-write cycles on one counter
// and checks no increment was lost.
func assertSerializes(t *testing.T, locker Locker) {
	t.Helper()
	const workers = 20
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(context.Background(), "counter")
			if !assert.NoError(t, err) {
				return
			}
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}
