package history

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// Clock supplies the current time. Injected so tests can control
// freshness deterministically.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// ttlByPeriod maps a query period to how long its responses stay fresh.
// Short windows refresh quickly for live dashboards; long windows change
// slowly and can be cached for an hour. Staleness is bounded purely by
// TTL - there is no write-triggered invalidation.
var ttlByPeriod = map[Period]time.Duration{
	Period1h:     30 * time.Second,
	Period6h:     60 * time.Second,
	Period24h:    300 * time.Second,
	Period3d:     900 * time.Second,
	Period7d:     1800 * time.Second,
	Period30d:    3600 * time.Second,
	PeriodCustom: 300 * time.Second,
}

// TTLForPeriod returns the cache TTL for a period key.
func TTLForPeriod(period Period) time.Duration {
	if ttl, ok := ttlByPeriod[period]; ok {
		return ttl
	}
	return ttlByPeriod[PeriodCustom]
}

// cacheEntry is an immutable cached payload. Entries are replaced on
// expiry, never mutated in place.
type cacheEntry struct {
	payload    []byte
	computedAt time.Time
	ttl        time.Duration
}

// fresh reports whether the entry is within its TTL at the given time.
func (e cacheEntry) fresh(now time.Time) bool {
	return now.Sub(e.computedAt) < e.ttl
}

// Cache memoizes computed history responses keyed by query identity.
//
// Expired entries are retained until overwritten so the service can
// degrade to a stale payload when the backend is down. Compute failures
// are never cached. Concurrent misses for one key are collapsed through
// a single flight; duplicate backend work is a correctness no-op either
// way since computation is a pure function of the key.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint64]cacheEntry
	clock   Clock
	group   singleflight.Group
}

// NewCache creates a Cache using the given clock (nil means system time).
func NewCache(clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock()
	}
	return &Cache{
		entries: make(map[uint64]cacheEntry),
		clock:   clock,
	}
}

// Key derives the cache key for a query. Two requests share a key only
// when device, window bounds, effective interval, and backend identity
// all match.
func Key(deviceID string, window Window, interval time.Duration, backend string) uint64 {
	h := xxhash.New()
	// Writes to xxhash.Digest never fail.
	_, _ = fmt.Fprintf(h, "%s|%d|%d|%d|%s",
		deviceID,
		window.Start.UnixNano(),
		window.End.UnixNano(),
		int64(interval),
		backend,
	)
	return h.Sum64()
}

// GetOrCompute returns the cached payload for key if fresh, otherwise
// runs compute and stores its result for ttl.
//
// The returned payload is shared; callers must treat it as read-only.
//
// Parameters:
//   - key: Cache key from Key()
//   - ttl: Freshness bound for a newly computed entry
//   - compute: Producer invoked on miss; its error is returned uncached
//
// Returns:
//   - []byte: The fresh payload
//   - bool: true when served from cache without invoking compute
//   - error: compute's error, if it ran and failed
func (c *Cache) GetOrCompute(key uint64, ttl time.Duration, compute func() ([]byte, error)) ([]byte, bool, error) {
	if payload, ok := c.getFresh(key); ok {
		return payload, true, nil
	}

	flightKey := strconv.FormatUint(key, 16)
	v, err, shared := c.group.Do(flightKey, func() (any, error) {
		// A concurrent flight may have populated the entry while this
		// call was queued.
		if payload, ok := c.getFresh(key); ok {
			return payload, nil
		}

		payload, err := compute()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{
			payload:    payload,
			computedAt: c.clock.Now(),
			ttl:        ttl,
		}
		c.mu.Unlock()

		return payload, nil
	})
	if err != nil {
		return nil, false, err
	}

	payload, _ := v.([]byte)
	return payload, shared, nil
}

// GetStale returns the last stored payload for key regardless of TTL.
// Used as a degraded response when recomputation fails.
func (c *Cache) GetStale(key uint64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.payload, true
}

// Len returns the number of stored entries (fresh or expired).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// getFresh returns the payload for key if the entry is within TTL.
func (c *Cache) getFresh(key uint64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !entry.fresh(c.clock.Now()) {
		return nil, false
	}
	return entry.payload, true
}
