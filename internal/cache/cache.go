// Package cache memoizes canonical series per (entity, indicator) key.
//
// Entries are served until their ttl expires, then refetched through the
// Loader and replaced wholesale. A failed refresh never evicts a prior entry:
// the prior series is returned marked Stale instead of the error. Each key has
// its own lock, so concurrent misses on one key fetch once while other keys
// proceed independently. The cache lives for the process only; the export
// that follows each successful refresh is a separate, best-effort side channel.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"macrodash/internal/logger"
	"macrodash/internal/metrics"
	"macrodash/internal/model"
)

// DefaultTTL applies when neither the call nor Options carry a ttl.
const DefaultTTL = 24 * time.Hour

// Loader fetches and normalizes the series for key.
type Loader func(ctx context.Context, key model.Key) (model.Series, error)

// Options configures a Cache. Only the loader passed to New is required.
type Options struct {
	TTL      time.Duration
	Clock    clockwork.Clock
	Exporter model.Exporter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Decompose, if set, runs once per refresh; its result is stored with
	// the entry and handed to the exporter and every later hit. An error
	// leaves the entry without a decomposition.
	Decompose func(model.Series) (model.Decomposition, error)

	// OnRefresh is called after every successful refresh while the key's
	// lock is held. It must not call back into the cache for the same key.
	OnRefresh func(Result)

	// OnRefreshError is called when a fetch fails. stale reports whether a
	// prior entry was served instead of the error.
	OnRefreshError func(key model.Key, err error, stale bool)
}

// Entry is what the cache stores per key.
type Entry struct {
	Series        model.Series
	Decomposition *model.Decomposition
	FetchedAt     time.Time
	TTL           time.Duration
}

// Result is returned by GetOrFetch. Series is always the caller's own copy.
type Result struct {
	Series        model.Series
	Decomposition *model.Decomposition
	FetchedAt     time.Time

	// Cached is true when no fetch happened for this call.
	Cached bool

	// Stale is true when a refresh failed and the prior entry was served.
	Stale bool
}

type slot struct {
	mu    sync.Mutex
	entry *Entry
}

// Cache is a per-key locked, ttl-bound series cache.
type Cache struct {
	load      Loader
	ttl       time.Duration
	clock     clockwork.Clock
	exporter  model.Exporter
	metrics   *metrics.Metrics
	log       *slog.Logger
	onRefresh func(Result)
	onError   func(model.Key, error, bool)
	decompose func(model.Series) (model.Decomposition, error)

	mu      sync.Mutex
	slots   map[model.Key]*slot
	entries atomic.Int64
}

// New creates a cache that fills misses with load.
func New(load Loader, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Cache{
		load:      load,
		ttl:       opts.TTL,
		clock:     opts.Clock,
		exporter:  opts.Exporter,
		metrics:   opts.Metrics,
		log:       lg.With(slog.String("component", "cache")),
		onRefresh: opts.OnRefresh,
		onError:   opts.OnRefreshError,
		decompose: opts.Decompose,
		slots:     make(map[model.Key]*slot),
	}
}

func (c *Cache) slot(key model.Key) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	return s
}

// GetOrFetch returns the cached series for key if it is younger than ttl,
// otherwise fetches, stores and returns a fresh one. ttl <= 0 uses the
// cache's default.
//
// If the fetch fails and an entry exists, that entry is returned with
// Stale set and a nil error. If no entry exists the fetch error is returned.
func (c *Cache) GetOrFetch(ctx context.Context, key model.Key, ttl time.Duration) (Result, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	s := c.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.entry; e != nil && c.clock.Since(e.FetchedAt) < ttl {
		c.metrics.ObserveCache(metrics.CacheHit)
		res := e.result()
		res.Cached = true
		return res, nil
	}

	series, err := c.load(ctx, key)
	if err != nil {
		if c.onError != nil {
			c.onError(key, err, s.entry != nil)
		}
		if e := s.entry; e != nil {
			c.metrics.ObserveCache(metrics.CacheStale)
			c.log.Warn("refresh failed, serving stale series",
				append(logger.Attrs(ctx), "key", key.String(), "age", c.clock.Since(e.FetchedAt), "error", err)...)
			res := e.result()
			res.Cached, res.Stale = true, true
			return res, nil
		}
		c.metrics.ObserveCache(metrics.CacheMiss)
		return Result{}, err
	}
	c.metrics.ObserveCache(metrics.CacheMiss)

	if s.entry == nil {
		c.metrics.SetCacheEntries(int(c.entries.Add(1)))
	}
	e := &Entry{Series: series.Clone(), FetchedAt: c.clock.Now(), TTL: ttl}
	if c.decompose != nil {
		if dec, err := c.decompose(e.Series); err == nil {
			e.Decomposition = &dec
		} else {
			c.log.Debug("decomposition skipped", append(logger.Attrs(ctx), "key", key.String(), "reason", err)...)
		}
	}
	s.entry = e

	res := e.result()
	c.export(ctx, e)
	if c.onRefresh != nil {
		c.onRefresh(e.result())
	}
	return res, nil
}

// result copies e into a Result the caller owns.
func (e *Entry) result() Result {
	return Result{Series: e.Series.Clone(), Decomposition: e.Decomposition.Clone(), FetchedAt: e.FetchedAt}
}

// export hands the fresh entry to the exporter. Failures are logged only.
func (c *Cache) export(ctx context.Context, e *Entry) {
	if c.exporter == nil {
		return
	}
	err := c.exporter.Export(ctx, model.Export{
		Series:        e.Series.Clone(),
		FetchedAt:     e.FetchedAt,
		Decomposition: e.Decomposition.Clone(),
	})
	if err != nil {
		c.log.Warn("series export failed",
			append(logger.Attrs(ctx), "key", e.Series.Key.String(), "error", err)...)
	}
}

// Peek returns a copy of the stored entry without fetching, fresh or not.
func (c *Cache) Peek(key model.Key) (Entry, bool) {
	c.mu.Lock()
	s, ok := c.slots[key]
	c.mu.Unlock()
	if !ok {
		return Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return Entry{}, false
	}
	e := *s.entry
	e.Series = e.Series.Clone()
	e.Decomposition = e.Decomposition.Clone()
	return e, true
}

// Invalidate drops the entry for key so the next call fetches.
func (c *Cache) Invalidate(key model.Key) {
	c.mu.Lock()
	s, ok := c.slots[key]
	c.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if s.entry != nil {
		s.entry = nil
		c.metrics.SetCacheEntries(int(c.entries.Add(-1)))
	}
	s.mu.Unlock()
}

// Len returns the number of stored entries.
func (c *Cache) Len() int { return int(c.entries.Load()) }
