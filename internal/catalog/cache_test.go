package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/event-registration-ledger/internal/config"
	"github.com/iliyamo/event-registration-ledger/internal/model"
)

type stubReader struct {
	events map[string]model.EventSummary
	err    error
	calls  [][]string
}

func (s *stubReader) GetEventsBatch(_ context.Context, ids []string) (map[string]model.EventSummary, error) {
	s.calls = append(s.calls, append([]string(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]model.EventSummary)
	for _, id := range ids {
		if ev, ok := s.events[id]; ok {
			out[id] = ev
		}
	}
	return out, nil
}

func TestNewCachedPassthrough(t *testing.T) {
	inner := &stubReader{}
	if got := NewCached(inner, nil, config.CatalogCacheConfig{Enabled: true}, nil); got != Reader(inner) {
		t.Fatal("nil redis client should return the wrapped reader")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	if got := NewCached(inner, rdb, config.CatalogCacheConfig{Enabled: false}, nil); got != Reader(inner) {
		t.Fatal("disabled cache should return the wrapped reader")
	}
}

func TestCachedFallsThroughOnRedisError(t *testing.T) {
	inner := &stubReader{events: map[string]model.EventSummary{
		"e1": {EventID: "e1", Name: "Book Club", IsPublished: true},
	}}
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	r := NewCached(inner, rdb, config.CatalogCacheConfig{Enabled: true, TTL: time.Minute, Prefix: "test"}, zaptest.NewLogger(t))
	got, err := r.GetEventsBatch(context.Background(), []string{"e1", "e2"})
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(got) != 1 || got["e1"].Name != "Book Club" {
		t.Fatalf("events = %+v", got)
	}
	if len(inner.calls) != 1 || len(inner.calls[0]) != 2 {
		t.Fatalf("inner calls = %v, want one batch of two", inner.calls)
	}
}

func TestCachedPropagatesReaderError(t *testing.T) {
	boom := errors.New("catalog down")
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	r := NewCached(&stubReader{err: boom}, rdb, config.CatalogCacheConfig{Enabled: true}, zaptest.NewLogger(t))
	if _, err := r.GetEventsBatch(context.Background(), []string{"e1"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey("", "e1"); got != "catalog:event:e1" {
		t.Fatalf("default key = %q", got)
	}
	if got := cacheKey("ledger", "e1"); got != "ledger:event:e1" {
		t.Fatalf("prefixed key = %q", got)
	}
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedServesHitsAndFetchesOnlyMisses(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	cached, err := json.Marshal(model.EventSummary{EventID: "e1", Name: "Book Club", IsPublished: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mr.Set("test:event:e1", string(cached))

	inner := &stubReader{events: map[string]model.EventSummary{
		"e1": {EventID: "e1", Name: "stale source", IsPublished: true},
		"e2": {EventID: "e2", Name: "Choir", IsPublished: true},
	}}
	r := NewCached(inner, rdb, config.CatalogCacheConfig{Enabled: true, TTL: time.Minute, Prefix: "test"}, zaptest.NewLogger(t))

	got, err := r.GetEventsBatch(context.Background(), []string{"e1", "e2"})
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if got["e1"].Name != "Book Club" || got["e2"].Name != "Choir" {
		t.Fatalf("events = %+v", got)
	}
	if len(inner.calls) != 1 || len(inner.calls[0]) != 1 || inner.calls[0][0] != "e2" {
		t.Fatalf("inner calls = %v, want one batch with only e2", inner.calls)
	}
	if !mr.Exists("test:event:e2") {
		t.Fatal("fetched event was not written back")
	}
	if ttl := mr.TTL("test:event:e2"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}

	// everything is cached now
	if _, err := r.GetEventsBatch(context.Background(), []string{"e1", "e2"}); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if len(inner.calls) != 1 {
		t.Fatalf("inner called again: %v", inner.calls)
	}
}

func TestCachedSkipsUnpublishedAndMissing(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	inner := &stubReader{events: map[string]model.EventSummary{
		"draft": {EventID: "draft", Name: "Draft", IsPublished: false},
	}}
	r := NewCached(inner, rdb, config.CatalogCacheConfig{Enabled: true, TTL: time.Minute, Prefix: "test"}, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		got, err := r.GetEventsBatch(context.Background(), []string{"draft", "gone"})
		if err != nil {
			t.Fatalf("get events: %v", err)
		}
		if _, ok := got["gone"]; ok || got["draft"].IsPublished {
			t.Fatalf("events = %+v", got)
		}
	}
	if mr.Exists("test:event:draft") || mr.Exists("test:event:gone") {
		t.Fatalf("keys cached: %v", mr.Keys())
	}
	if len(inner.calls) != 2 {
		t.Fatalf("inner calls = %d, want every lookup to reach the catalog", len(inner.calls))
	}
}

func TestCachedTreatsCorruptEntryAsMiss(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	mr.Set("test:event:e1", "{not json")
	inner := &stubReader{events: map[string]model.EventSummary{
		"e1": {EventID: "e1", Name: "Book Club", IsPublished: true},
	}}
	r := NewCached(inner, rdb, config.CatalogCacheConfig{Enabled: true, TTL: time.Minute, Prefix: "test"}, zaptest.NewLogger(t))

	got, err := r.GetEventsBatch(context.Background(), []string{"e1"})
	if err != nil || got["e1"].Name != "Book Club" {
		t.Fatalf("events = %+v, err = %v", got, err)
	}
	if len(inner.calls) != 1 {
		t.Fatalf("inner calls = %v", inner.calls)
	}
}
