package database

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ksred/catalog-migrate/internal/utils"
)

// retryInterval is how often a waiting runner re-polls the advisory lock.
const retryInterval = 500 * time.Millisecond

// Locker serializes concurrent runner processes against the same database.
type Locker interface {
	Acquire(ctx context.Context) error
	Release()
}

// NoopLocker satisfies Locker without any mutual exclusion, for storage
// engines that lack an advisory-lock primitive.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context) error { return nil }
func (NoopLocker) Release()                      {}

// AdvisoryLock holds a PostgreSQL session-scoped advisory lock on a dedicated
// connection pinned out of the pool. The session scoping means the database
// releases the lock itself when the connection dies, so a crashed runner
// never leaves the lock stuck.
type AdvisoryLock struct {
	db      *sql.DB
	key     int64
	timeout time.Duration
	logger  zerolog.Logger
	conn    *sql.Conn
}

// NewAdvisoryLock creates a lock keyed by an FNV-1a hash of namespace, so the
// key is stable across builds and distinct from other tools' advisory locks.
func NewAdvisoryLock(db *sql.DB, namespace string, timeout time.Duration, logger zerolog.Logger) *AdvisoryLock {
	return &AdvisoryLock{
		db:      db,
		key:     lockKey(namespace),
		timeout: timeout,
		logger:  logger,
	}
}

func lockKey(namespace string) int64 {
	h := fnv.New64a()
	h.Write([]byte(namespace))
	return int64(h.Sum64())
}

// Acquire polls pg_try_advisory_lock until it succeeds or the bounded wait
// expires, failing fast with a lock timeout in the latter case.
func (l *AdvisoryLock) Acquire(ctx context.Context) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return utils.WrapConnectionError(1, err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired); err != nil {
			conn.Close()
			return utils.WrapConnectionError(1, err)
		}
		if acquired {
			l.conn = conn
			l.logger.Debug().Int64("key", l.key).Msg("Acquired advisory lock")
			return nil
		}

		if time.Now().After(deadline) {
			conn.Close()
			return utils.NewLockTimeoutError(l.key, l.timeout)
		}

		l.logger.Debug().Int64("key", l.key).Msg("Advisory lock held by another runner, waiting")
		select {
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release unlocks and returns the pinned connection to the pool. Closing the
// session releases the lock even when the unlock call itself fails.
func (l *AdvisoryLock) Release() {
	if l.conn == nil {
		return
	}

	if _, err := l.conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		l.logger.Warn().Err(err).Int64("key", l.key).Msg("Failed to release advisory lock cleanly")
	}
	l.conn.Close()
	l.conn = nil
}
