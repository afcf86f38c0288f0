package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](context.Background(), 5*time.Minute)

	c.Set("austin", "blue")
	val, ok := c.Get("austin")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "blue" {
		t.Errorf("expected 'blue', got '%s'", val)
	}
}

func TestCache_Expiration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := cache.New[string](ctx, 50*time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](context.Background(), 5*time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_GetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	c := cache.New[int](context.Background(), time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "partner", func(context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			if err != nil || v != 42 {
				t.Errorf("GetOrLoad = %d, %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected 1 load, got %d", calls.Load())
	}
}

func TestCache_GetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := cache.New[int](context.Background(), time.Minute)
	var hits, misses int
	c.OnLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
		return 0, errors.New("upstream down")
	})
	if err == nil {
		t.Fatal("expected load error")
	}
	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("GetOrLoad = %d, %v", v, err)
	}
	if _, err := c.GetOrLoad(context.Background(), "k", nil); err != nil {
		t.Fatal(err)
	}
	if hits != 1 || misses != 2 {
		t.Errorf("hits=%d misses=%d", hits, misses)
	}
}
