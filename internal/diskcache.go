package internal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
)

// _cacheTTL is how long cached aggregation results stay valid.
var _cacheTTL = 24 * time.Hour

// DiskCache is a durable TTL cache of aggregation results, one JSON file
// per key under dir. Entries are read and written as whole units; an
// unreadable, undecodable, or expired entry is simply a miss. The cache
// survives restarts and is shared between processes pointed at the same
// directory.
type DiskCache struct {
	dir string
	ttl time.Duration

	mu      sync.Mutex
	metrics *cacheMetrics
}

// NewDiskCache creates the cache directory if needed. A non-positive ttl
// falls back to the 24h default.
func NewDiskCache(dir string, ttl time.Duration, reg *prometheus.Registry) (*DiskCache, error) {
	if ttl <= 0 {
		ttl = _cacheTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{
		dir:     dir,
		ttl:     ttl,
		metrics: newCacheMetrics(reg, "disk"),
	}, nil
}

// Get returns the cached records for key if the entry exists, decodes
// cleanly, and hasn't outlived the TTL. Every failure mode is a miss,
// never an error: a concurrent clear or a corrupt file must not break the
// caller.
func (c *DiskCache) Get(ctx context.Context, key string) ([]BookRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			Log(ctx).Debug("problem reading cache entry", "key", key, "err", err)
		}
		c.metrics.missInc()
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		Log(ctx).Debug("undecodable cache entry", "key", key, "err", err)
		c.metrics.missInc()
		return nil, false
	}

	if time.Since(entry.Timestamp) > c.ttl {
		Log(ctx).Debug("cache entry expired", "key", key)
		c.metrics.missInc()
		return nil, false
	}

	Log(ctx).Debug("cache hit", "key", key)
	c.metrics.hitInc()
	return entry.Data, true
}

// Put writes records under key with the current timestamp. A write
// failure is reported, not raised: the freshly computed result is still
// valid for the caller.
func (c *DiskCache) Put(ctx context.Context, key string, records []BookRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(cacheEntry{Timestamp: time.Now(), Data: records})
	if err != nil {
		Log(ctx).Warn("problem encoding cache entry", "key", key, "err", err)
		return false
	}
	if err := os.WriteFile(c.path(key), raw, 0o644); err != nil {
		Log(ctx).Warn("problem writing cache entry", "key", key, "err", err)
		return false
	}

	Log(ctx).Debug("saved cache entry", "key", key)
	return true
}

// Clear removes every entry unconditionally and leaves the directory
// present and empty. Calling it twice is a no-op the second time.
func (c *DiskCache) Clear(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		Log(ctx).Warn("problem clearing cache", "err", err)
		return false
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		Log(ctx).Warn("problem recreating cache dir", "err", err)
		return false
	}
	return true
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
