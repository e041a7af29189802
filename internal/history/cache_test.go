package history

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock for cache tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCacheHitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(clock)

	computes := 0
	compute := func() ([]byte, error) {
		computes++
		return []byte(`{"n":1}`), nil
	}

	first, hit, err := cache.GetOrCompute(1, 30*time.Second, compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error: %v", err)
	}
	if hit {
		t.Error("first call reported a cache hit")
	}

	clock.Advance(29 * time.Second)
	second, hit, err := cache.GetOrCompute(1, 30*time.Second, compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error: %v", err)
	}
	if !hit {
		t.Error("call within TTL was not a cache hit")
	}
	if computes != 1 {
		t.Errorf("compute ran %d times, want 1", computes)
	}
	if !bytes.Equal(first, second) {
		t.Error("cache hit returned different payload bytes")
	}
}

func TestCacheRecomputesAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(clock)

	computes := 0
	compute := func() ([]byte, error) {
		computes++
		return []byte{byte(computes)}, nil
	}

	if _, _, err := cache.GetOrCompute(1, 30*time.Second, compute); err != nil {
		t.Fatalf("GetOrCompute() error: %v", err)
	}

	clock.Advance(31 * time.Second)
	payload, hit, err := cache.GetOrCompute(1, 30*time.Second, compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error: %v", err)
	}
	if hit {
		t.Error("expired entry reported as a hit")
	}
	if computes != 2 {
		t.Errorf("compute ran %d times, want 2", computes)
	}
	if !bytes.Equal(payload, []byte{2}) {
		t.Errorf("payload = %v, want recomputed value", payload)
	}
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	cache := NewCache(newFakeClock())
	wantErr := errors.New("backend down")

	_, _, err := cache.GetOrCompute(1, time.Minute, func() ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrCompute() error = %v, want %v", err, wantErr)
	}

	if cache.Len() != 0 {
		t.Errorf("failed compute left %d entries in the cache", cache.Len())
	}
	if _, ok := cache.GetStale(1); ok {
		t.Error("failed compute produced a stale entry")
	}
}

func TestCacheStaleSurvivesExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(clock)

	payload := []byte(`{"data":[]}`)
	if _, _, err := cache.GetOrCompute(1, time.Second, func() ([]byte, error) {
		return payload, nil
	}); err != nil {
		t.Fatalf("GetOrCompute() error: %v", err)
	}

	clock.Advance(time.Hour)
	stale, ok := cache.GetStale(1)
	if !ok {
		t.Fatal("expired entry was not retained for stale fallback")
	}
	if !bytes.Equal(stale, payload) {
		t.Error("stale payload differs from original")
	}
}

func TestKeyDiscriminates(t *testing.T) {
	base := Window{
		Start: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
	}
	shifted := Window{Start: base.Start.Add(time.Second), End: base.End}

	reference := Key("plug-1", base, 15*time.Minute, "sqlite")

	variants := map[string]uint64{
		"different device":   Key("plug-2", base, 15*time.Minute, "sqlite"),
		"different window":   Key("plug-1", shifted, 15*time.Minute, "sqlite"),
		"different interval": Key("plug-1", base, 5*time.Minute, "sqlite"),
		"different backend":  Key("plug-1", base, 15*time.Minute, "influxdb"),
	}

	for name, key := range variants {
		if key == reference {
			t.Errorf("%s produced the same cache key", name)
		}
	}

	if again := Key("plug-1", base, 15*time.Minute, "sqlite"); again != reference {
		t.Error("identical inputs produced different cache keys")
	}
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(clock)

	var mu sync.Mutex
	computes := 0
	release := make(chan struct{})

	compute := func() ([]byte, error) {
		mu.Lock()
		computes++
		mu.Unlock()
		<-release
		return []byte("ok"), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	started := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			if _, _, err := cache.GetOrCompute(7, time.Minute, compute); err != nil {
				t.Errorf("GetOrCompute() error: %v", err)
			}
		}()
	}

	for i := 0; i < workers; i++ {
		<-started
	}
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if computes > 2 {
		t.Errorf("compute ran %d times under concurrent misses, want collapsed flights", computes)
	}
}
