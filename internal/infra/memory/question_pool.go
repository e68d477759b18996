package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// PoolLoader lists active question IDs of a category from a backing store.
type PoolLoader interface {
	ActiveQuestionIDs(ctx context.Context, categoryID int64) ([]int64, error)
}

// QuestionPool caches per-category pools with TTL to avoid a DB hit on every attempt start.
type QuestionPool struct {
	loader PoolLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedPool
}

type cachedPool struct {
	ids       []int64
	expiresAt time.Time
}

func NewQuestionPool(loader PoolLoader, ttl time.Duration) *QuestionPool {
	return &QuestionPool{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedPool),
	}
}

func (p *QuestionPool) ActiveQuestionIDs(ctx context.Context, categoryID int64) ([]int64, error) {
	if p.ttl <= 0 {
		return p.loader.ActiveQuestionIDs(ctx, categoryID)
	}
	if ids, ok := p.lookup(categoryID, p.clock()); ok {
		return ids, nil
	}

	result, err, _ := p.sf.Do(strconv.FormatInt(categoryID, 10), func() (interface{}, error) {
		now := p.clock()
		if ids, ok := p.lookup(categoryID, now); ok {
			return ids, nil
		}
		ids, err := p.loader.ActiveQuestionIDs(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		expiresAt := now.Add(p.ttlWithJitter())
		p.mu.Lock()
		p.cache[categoryID] = cachedPool{ids: ids, expiresAt: expiresAt}
		p.mu.Unlock()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]int64(nil), result.([]int64)...), nil
}

// Invalidate drops a cached category pool.
func (p *QuestionPool) Invalidate(_ context.Context, categoryID int64) error {
	p.mu.Lock()
	delete(p.cache, categoryID)
	p.mu.Unlock()
	return nil
}

func (p *QuestionPool) lookup(categoryID int64, now time.Time) ([]int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.cache[categoryID]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return append([]int64(nil), entry.ids...), true
}

func (p *QuestionPool) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(p.ttl) / 10
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ttl + time.Duration(p.rnd.Int63n(jitterMax+1))
}
