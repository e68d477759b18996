package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingLoader struct {
	mu    sync.Mutex
	ids   map[int64][]int64
	calls int
}

func (l *countingLoader) ActiveQuestionIDs(_ context.Context, categoryID int64) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return append([]int64(nil), l.ids[categoryID]...), nil
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func TestQuestionPoolCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ids: map[int64][]int64{1: {11, 12, 13}}}
	pool := NewQuestionPool(newClient(mr), loader, time.Minute)

	ids, err := pool.ActiveQuestionIDs(context.Background(), 1)
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 3 || loader.calls != 1 {
		t.Fatalf("expected 3 ids from one load, got %v after %d calls", ids, loader.calls)
	}
	raw, err := mr.Get("pool:category:1")
	if err != nil || raw != "11,12,13" {
		t.Fatalf("unexpected cached value %q, %v", raw, err)
	}
	if ttl := mr.TTL("pool:category:1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	_, _ = pool.ActiveQuestionIDs(context.Background(), 1)
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestQuestionPoolCachesEmptyPool(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ids: map[int64][]int64{}}
	pool := NewQuestionPool(newClient(mr), loader, time.Minute)
	for i := 0; i < 2; i++ {
		ids, err := pool.ActiveQuestionIDs(context.Background(), 7)
		if err != nil {
			t.Fatalf("active ids: %v", err)
		}
		if len(ids) != 0 {
			t.Fatalf("expected empty pool, got %v", ids)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected empty pool to be cached, loader calls=%d", loader.calls)
	}
}

func TestQuestionPoolExpiryAndInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ids: map[int64][]int64{1: {11}}}
	pool := NewQuestionPool(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	_, _ = pool.ActiveQuestionIDs(ctx, 1)
	mr.FastForward(2 * time.Minute)
	_, _ = pool.ActiveQuestionIDs(ctx, 1)
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, got %d", loader.calls)
	}

	if err := pool.Invalidate(ctx, 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("pool:category:1") {
		t.Fatalf("expected key to be removed")
	}
	_, _ = pool.ActiveQuestionIDs(ctx, 1)
	if loader.calls != 3 {
		t.Fatalf("expected reload after invalidate, got %d", loader.calls)
	}
}

func TestDecodeIDsRejectsGarbage(t *testing.T) {
	if _, err := decodeIDs("1,x,3"); err == nil {
		t.Fatalf("expected parse error")
	}
	ids, err := decodeIDs(encodeIDs([]int64{5, 6}))
	if err != nil || len(ids) != 2 || ids[1] != 6 {
		t.Fatalf("unexpected decode %v, %v", ids, err)
	}
}
