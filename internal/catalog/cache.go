package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/event-registration-ledger/internal/config"
	"github.com/iliyamo/event-registration-ledger/internal/model"
)

// Cached is a Reader that keeps published event summaries in Redis.
// Lookups go out as a single MGET; the misses are fetched from the
// wrapped Reader in one batch and written back with a TTL.  Missing and
// unpublished events are never cached so a newly published event shows up
// without waiting for expiry.  Any Redis failure falls through to the
// wrapped Reader.
type Cached struct {
	next   Reader
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewCached wraps next with a Redis cache.  When caching is disabled or
// rdb is nil, next is returned unchanged.
func NewCached(next Reader, rdb *redis.Client, cfg config.CatalogCacheConfig, log *zap.Logger) Reader {
	if !cfg.Enabled || rdb == nil {
		return next
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, prefix: cfg.Prefix, log: log}
}

func (c *Cached) key(id string) string { return cacheKey(c.prefix, id) }

func cacheKey(prefix, id string) string {
	if prefix == "" {
		prefix = "catalog"
	}
	return prefix + ":event:" + id
}

// GetEventsBatch implements Reader.
func (c *Cached) GetEventsBatch(ctx context.Context, ids []string) (map[string]model.EventSummary, error) {
	out := make(map[string]model.EventSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	misses := ids
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("catalog cache read failed", zap.Error(err))
	} else {
		misses = make([]string, 0, len(ids))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				misses = append(misses, ids[i])
				continue
			}
			var ev model.EventSummary
			if err := json.Unmarshal([]byte(s), &ev); err != nil {
				misses = append(misses, ids[i])
				continue
			}
			out[ids[i]] = ev
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.next.GetEventsBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := c.rdb.Pipeline()
	queued := 0
	for id, ev := range fetched {
		out[id] = ev
		if !ev.IsPublished {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		pipe.SetEx(ctx, c.key(id), payload, c.ttl)
		queued++
	}
	if queued > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.log.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return out, nil
}
