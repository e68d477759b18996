package redis

import (
	"context"
	"log"
	"sync"
	"time"

	"mcq-exam-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lease only if this holder still owns it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const defaultLockTTL = 30 * time.Second

// Locker is a Redis-backed app.Locker so recalculations serialize across instances.
// Keys are stored as: SET lock:{key} {holder} NX PX {ttl}
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock polls until the lock is acquired or ctx is done. While held, the lease is
// extended every ttl/3; it expires after ttl once the holder stops refreshing, so a
// crashed instance cannot block an exam forever.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	holder := uuid.NewString()
	redisKey := "lock:" + key

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, holder, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.ErrLockTimeout
			}
			return nil, err
		}
		if ok {
			return l.hold(redisKey, holder), nil
		}
		select {
		case <-ctx.Done():
			return nil, domain.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

// hold keeps the lease alive until the returned unlock is called. Unlock is idempotent.
func (l *Locker) hold(redisKey, holder string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				n, err := refreshScript.Run(context.Background(), l.client, []string{redisKey}, holder, l.ttl.Milliseconds()).Int()
				if err != nil {
					log.Printf("redis lock %s: refresh failed: %v", redisKey, err)
					continue
				}
				if n == 0 {
					log.Printf("redis lock %s: lease lost", redisKey)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = releaseScript.Run(context.Background(), l.client, []string{redisKey}, holder).Err()
		})
	}
}
