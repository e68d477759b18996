package postgres

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"mcq-exam-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Locker is an app.Locker on session-level advisory locks. Each held lock pins one
// pooled connection until it is released.
type Locker struct {
	pool  *pgxpool.Pool
	retry time.Duration
}

func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool, retry: 50 * time.Millisecond}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, lockErr(ctx, err)
	}
	id := advisoryKey(key)

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		var ok bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&ok); err != nil {
			conn.Release()
			return nil, lockErr(ctx, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, id)
					conn.Release()
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, domain.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

// lockErr reports a deadline hit mid-query as a lock timeout.
func lockErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.ErrLockTimeout
	}
	return err
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
