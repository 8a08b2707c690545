// Package distlock provides cross-process mutual exclusion keyed by string.
// Redis is preferred; PostgreSQL advisory locks serve deployments without
// Redis.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single named lock.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// DefaultRetryInterval is how often Keyed polls a held lock.
const DefaultRetryInterval = 25 * time.Millisecond

// Keyed hands out blocking locks by key. A fresh DistLock is created per
// Lock call so one Keyed is safe for concurrent use.
type Keyed struct {
	newLock func(key string) DistLock
	retry   time.Duration
}

// NewKeyed creates a Keyed locker that builds locks with newLock.
func NewKeyed(newLock func(key string) DistLock, retry time.Duration) *Keyed {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Keyed{newLock: newLock, retry: retry}
}

// NewKeyedRedis locks keys with Redis SET NX under the given prefix.
func NewKeyedRedis(client *redis.Client, prefix string, ttl time.Duration) *Keyed {
	return NewKeyed(func(key string) DistLock {
		return NewRedisLock(client, prefix+key, ttl)
	}, 0)
}

// NewKeyedPG locks keys with PostgreSQL advisory locks under the given prefix.
func NewKeyedPG(db *sql.DB, prefix string) *Keyed {
	return NewKeyed(func(key string) DistLock {
		return NewPGAdvisoryLock(db, prefix+key)
	}, 0)
}

// Lock blocks until key is held or ctx is done. The returned func releases
// the lock; it uses a background context so release still happens after
// ctx is canceled.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	l := k.newLock(key)
	ticker := time.NewTicker(k.retry)
	defer ticker.Stop()

	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = l.Release(releaseCtx)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %q: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection from Acquire until Release. Dropping the connection releases
// the lock server-side.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("advisory lock already held")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns its connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
