package redis

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// PoolLoader lists active question IDs of a category from a backing store.
type PoolLoader interface {
	ActiveQuestionIDs(ctx context.Context, categoryID int64) ([]int64, error)
}

// QuestionPool caches per-category pools in Redis and falls back to a loader on miss.
// Pools are stored as: SET pool:category:{categoryID} "{id},{id},..."
// An empty value is a cached empty pool.
type QuestionPool struct {
	client *redis.Client
	loader PoolLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionPool(client *redis.Client, loader PoolLoader, ttl time.Duration) *QuestionPool {
	return &QuestionPool{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *QuestionPool) ActiveQuestionIDs(ctx context.Context, categoryID int64) ([]int64, error) {
	key := p.key(categoryID)
	if ids, ok := p.cached(ctx, key); ok {
		return ids, nil
	}

	result, err, _ := p.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if ids, ok := p.cached(ctx, key); ok {
			return ids, nil
		}
		ids, err := p.loader.ActiveQuestionIDs(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		if ttl := p.ttlWithJitter(); ttl > 0 {
			_ = p.client.Set(ctx, key, encodeIDs(ids), ttl).Err()
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]int64(nil), result.([]int64)...), nil
}

// Invalidate drops a cached category pool.
func (p *QuestionPool) Invalidate(ctx context.Context, categoryID int64) error {
	return p.client.Del(ctx, p.key(categoryID)).Err()
}

func (p *QuestionPool) cached(ctx context.Context, key string) ([]int64, bool) {
	raw, err := p.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return nil, false
	}
	ids, err := decodeIDs(raw)
	if err != nil {
		return nil, false
	}
	return ids, true
}

func (p *QuestionPool) key(categoryID int64) string {
	return "pool:category:" + strconv.FormatInt(categoryID, 10)
}

func (p *QuestionPool) ttlWithJitter() time.Duration {
	if p.ttl <= 0 {
		return 0
	}
	jitterMax := int64(p.ttl) / 10
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ttl + time.Duration(p.rnd.Int63n(jitterMax+1))
}

func encodeIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func decodeIDs(raw string) ([]int64, error) {
	if raw == "" {
		return []int64{}, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
