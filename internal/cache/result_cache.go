package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPrefix        = "ai_insights_"
	DefaultTTL           = 24 * time.Hour
	DefaultHighWaterMark = 50
	DefaultEvictCount    = 20
)

// Options configures a ResultCache; zero values take the defaults
type Options struct {
	Prefix        string
	TTL           time.Duration
	HighWaterMark int
	EvictCount    int
	Now           func() time.Time
}

// Stats summarises the entries under the cache prefix
type Stats struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"totalBytes"`
}

// entry is the serialized envelope. Timestamp is epoch milliseconds.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ResultCache is a TTL cache of computed insight results over a Store.
// Failures never propagate: a broken store degrades to cache misses.
type ResultCache struct {
	store         Store
	prefix        string
	ttl           time.Duration
	highWaterMark int
	evictCount    int
	now           func() time.Time
	logger        *zap.Logger
}

// NewResultCache creates a result cache
func NewResultCache(store Store, opts Options, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.HighWaterMark <= 0 {
		opts.HighWaterMark = DefaultHighWaterMark
	}
	if opts.EvictCount <= 0 {
		opts.EvictCount = DefaultEvictCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &ResultCache{
		store:         store,
		prefix:        opts.Prefix,
		ttl:           opts.TTL,
		highWaterMark: opts.HighWaterMark,
		evictCount:    opts.EvictCount,
		now:           opts.Now,
		logger:        logger.Named("result-cache"),
	}
}

// Prefix returns the namespace every key shares
func (c *ResultCache) Prefix() string {
	return c.prefix
}

// Key builds "{prefix}{kind}_{organizationID}"
func (c *ResultCache) Key(kind, organizationID string) string {
	return fmt.Sprintf("%s%s_%s", c.prefix, kind, organizationID)
}

// Get returns the cached payload, or false when absent, expired or unreadable.
// Expired and corrupt entries are removed.
func (c *ResultCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Data == nil {
		c.logger.Warn("Dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.delete(ctx, key)
		return nil, false
	}

	if c.now().Sub(time.UnixMilli(e.Timestamp)) >= c.ttl {
		c.delete(ctx, key)
		return nil, false
	}

	return e.Data, true
}

// Load decodes a cached payload into dest and reports whether it was a hit.
// An undecodable payload counts as a miss and is removed.
func (c *ResultCache) Load(ctx context.Context, key string, dest interface{}) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Cached payload does not match the expected shape", zap.String("key", key), zap.Error(err))
		c.delete(ctx, key)
		return false
	}
	return true
}

// Set stores data under key, stamped with the current time. On ErrStoreFull one
// eviction pass runs; the write is not retried.
func (c *ResultCache) Set(ctx context.Context, key string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("Failed to serialize cache payload", zap.String("key", key), zap.Error(err))
		return
	}

	raw, err := json.Marshal(entry{Data: payload, Timestamp: c.now().UnixMilli()})
	if err != nil {
		c.logger.Warn("Failed to serialize cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.store.Set(ctx, key, raw); err != nil {
		if errors.Is(err, ErrStoreFull) {
			evicted := c.evictOldest(ctx)
			c.logger.Warn("Cache store full, evicted oldest entries",
				zap.String("key", key),
				zap.Int("evicted", evicted))
			return
		}
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear removes every entry whose key starts with prefix (the cache prefix when
// empty) and returns how many were removed
func (c *ResultCache) Clear(ctx context.Context, prefix string) int {
	if prefix == "" {
		prefix = c.prefix
	}
	removed, err := c.store.RemoveByPrefix(ctx, prefix)
	if err != nil {
		c.logger.Warn("Cache clear failed", zap.String("prefix", prefix), zap.Error(err))
		return 0
	}
	return removed
}

// ClearOrganization removes the entries of the given kinds cached for one
// organization. Keys are matched exactly so one organization id being a suffix
// of another never clears the wrong tenant.
func (c *ResultCache) ClearOrganization(ctx context.Context, organizationID string, kinds ...string) int {
	wanted := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		wanted[c.Key(kind, organizationID)] = struct{}{}
	}

	keys, err := c.store.Keys(ctx, c.prefix)
	if err != nil {
		c.logger.Warn("Cache key listing failed", zap.Error(err))
		return 0
	}

	removed := 0
	for _, key := range keys {
		if _, ok := wanted[key]; !ok {
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("Cache delete failed", zap.String("key", key), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

// Stats counts entries and their serialized size under the cache prefix
func (c *ResultCache) Stats(ctx context.Context) Stats {
	var stats Stats

	keys, err := c.store.Keys(ctx, c.prefix)
	if err != nil {
		c.logger.Warn("Cache key listing failed", zap.Error(err))
		return stats
	}

	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		stats.Count++
		stats.TotalBytes += int64(len(raw))
	}
	return stats
}

// evictOldest removes the evictCount oldest entries once more than highWaterMark
// entries exist. Unreadable entries sort first.
func (c *ResultCache) evictOldest(ctx context.Context) int {
	keys, err := c.store.Keys(ctx, c.prefix)
	if err != nil {
		c.logger.Warn("Cache key listing failed during eviction", zap.Error(err))
		return 0
	}
	if len(keys) <= c.highWaterMark {
		return 0
	}

	type aged struct {
		key       string
		timestamp int64
	}
	entries := make([]aged, 0, len(keys))
	for _, key := range keys {
		a := aged{key: key}
		if raw, ok, err := c.store.Get(ctx, key); err == nil && ok {
			var e entry
			if json.Unmarshal(raw, &e) == nil {
				a.timestamp = e.Timestamp
			}
		}
		entries = append(entries, a)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].timestamp == entries[j].timestamp {
			return entries[i].key < entries[j].key
		}
		return entries[i].timestamp < entries[j].timestamp
	})

	limit := c.evictCount
	if limit > len(entries) {
		limit = len(entries)
	}

	evicted := 0
	for _, e := range entries[:limit] {
		if err := c.store.Delete(ctx, e.key); err != nil {
			continue
		}
		evicted++
	}
	return evicted
}

func (c *ResultCache) delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("Cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
