// Package cache memoizes artifacts by fingerprint and guarantees at most one in-flight
// provider call per fingerprint.
package cache

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Tier is an optional shared second level consulted on local misses.
type Tier interface {
	Get(ctx context.Context, fingerprint string) (models.ArtifactResult, bool, error)
	Set(ctx context.Context, fingerprint string, art models.ArtifactResult, ttl time.Duration) error
}

// TTLs holds per-content-type lifetimes. Zero disables caching for that type.
type TTLs map[models.ContentType]time.Duration

type Stats struct {
	Entries     int   `json:"entries"`
	Capacity    int   `json:"capacity"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	SharedCalls int64 `json:"shared_calls"`
	TierErrors  int64 `json:"tier_errors"`
}

// Result is what Do hands back to each caller.
type Result struct {
	Artifact models.ArtifactResult
	// FromCache is set when the flight found the entry already stored.
	FromCache bool
	// Shared is set for callers that waited on another caller's flight.
	Shared bool
}

type Option func(*Cache)

func WithTier(t Tier) Option { return func(c *Cache) { c.tier = t } }

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l.With("component", "result_cache") }
}

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// Cache is a bounded LRU with per-entry expiry.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttls     TTLs
	ll       *list.List
	items    map[string]*list.Element

	group   singleflight.Group
	fmu     sync.Mutex
	flights map[string]*flight
	tier    Tier
	logger *slog.Logger
	now    func() time.Time

	hits, misses, evictions, shared, tierErrors atomic.Int64
}

func New(capacity int, ttls TTLs, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	c := &Cache{
		capacity: capacity,
		ttls:     ttls,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		flights:  make(map[string]*flight),
		logger:   slog.Default().With("component", "result_cache"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTLFor returns the configured lifetime for a content type.
func (c *Cache) TTLFor(t models.ContentType) time.Duration {
	return c.ttls[t]
}

// Get returns a live entry, consulting the tier on a local miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (models.ArtifactResult, bool) {
	if art, ok := c.lookup(fingerprint); ok {
		c.hits.Add(1)
		return art, true
	}

	if c.tier != nil {
		art, ok, err := c.tier.Get(ctx, fingerprint)
		if err != nil {
			c.tierErrors.Add(1)
			c.logger.WarnContext(ctx, "cache tier read failed", "fingerprint", fingerprint, "error", err)
		} else if ok {
			c.store(fingerprint, art, c.ttls[art.ContentType])
			c.hits.Add(1)
			return art, true
		}
	}

	c.misses.Add(1)
	return models.ArtifactResult{}, false
}

// Put stores art for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(ctx context.Context, fingerprint string, art models.ArtifactResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.store(fingerprint, art, ttl)

	if c.tier != nil {
		if err := c.tier.Set(ctx, fingerprint, art, ttl); err != nil {
			c.tierErrors.Add(1)
			c.logger.WarnContext(ctx, "cache tier write failed", "fingerprint", fingerprint, "error", err)
		}
	}
}

// flight is the context a shared call runs under. It is detached from any one caller's
// cancellation and cancelled once every caller has stopped waiting.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	callers int
}

// Do runs fn at most once at a time per fingerprint. Concurrent callers wait for the running
// call and receive its outcome; a successful artifact is stored for ttl before waiters are
// released. Errors reach current waiters but are never stored, so the next caller tries again.
//
// fn gets a context that keeps the starting caller's deadline but not its cancellation, so a
// caller that gives up does not fail the others. A caller whose ctx ends stops waiting and gets
// ctx.Err(). A waiter handed a context error it did not cause joins or starts a fresh call.
func (c *Cache) Do(ctx context.Context, fingerprint string, ttl time.Duration, fn func(context.Context) (models.ArtifactResult, error)) (Result, error) {
	for {
		res, led, err := c.do(ctx, fingerprint, ttl, fn)
		if err == nil || led || ctx.Err() != nil || !isContextError(err) {
			return res, err
		}
		c.logger.DebugContext(ctx, "shared call ended under another caller's context, rejoining",
			"fingerprint", fingerprint, "error", err)
	}
}

func (c *Cache) do(ctx context.Context, fingerprint string, ttl time.Duration, fn func(context.Context) (models.ArtifactResult, error)) (Result, bool, error) {
	f := c.join(ctx, fingerprint)
	defer c.leave(fingerprint, f)

	led := false
	ch := c.group.DoChan(fingerprint, func() (interface{}, error) {
		led = true
		defer c.retire(fingerprint, f)

		if art, ok := c.lookup(fingerprint); ok {
			return Result{Artifact: art, FromCache: true}, nil
		}
		art, err := fn(f.ctx)
		if err != nil {
			return nil, err
		}
		c.Put(f.ctx, fingerprint, art, ttl)
		return Result{Artifact: art}, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		if res.Err != nil {
			return Result{Shared: res.Shared}, led, res.Err
		}
		out := res.Val.(Result)
		out.Shared = res.Shared
		return out, led, nil
	case <-ctx.Done():
		return Result{}, false, ctx.Err()
	}
}

func (c *Cache) join(ctx context.Context, fingerprint string) *flight {
	c.fmu.Lock()
	defer c.fmu.Unlock()

	f, ok := c.flights[fingerprint]
	if !ok {
		f = &flight{}
		if deadline, ok := ctx.Deadline(); ok {
			f.ctx, f.cancel = context.WithDeadline(context.WithoutCancel(ctx), deadline)
		} else {
			f.ctx, f.cancel = context.WithCancel(context.WithoutCancel(ctx))
		}
		c.flights[fingerprint] = f
	}
	f.callers++
	return f
}

// leave cancels the flight once nobody is waiting for it.
func (c *Cache) leave(fingerprint string, f *flight) {
	c.fmu.Lock()
	defer c.fmu.Unlock()

	f.callers--
	if f.callers > 0 {
		return
	}
	if c.flights[fingerprint] == f {
		delete(c.flights, fingerprint)
	}
	f.cancel()
}

// retire stops new callers from joining a flight whose call is returning.
func (c *Cache) retire(fingerprint string, f *flight) {
	c.fmu.Lock()
	defer c.fmu.Unlock()
	if c.flights[fingerprint] == f {
		delete(c.flights, fingerprint)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := c.ll.Len()
	c.mu.Unlock()

	return Stats{
		Entries:     entries,
		Capacity:    c.capacity,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		SharedCalls: c.shared.Load(),
		TierErrors:  c.tierErrors.Load(),
	}
}

func (c *Cache) lookup(fingerprint string) (models.ArtifactResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	if !ok {
		return models.ArtifactResult{}, false
	}
	entry := el.Value.(*models.CacheEntry)
	if !c.now().Before(entry.ExpiresAt) {
		c.ll.Remove(el)
		delete(c.items, fingerprint)
		c.evictions.Add(1)
		return models.ArtifactResult{}, false
	}
	c.ll.MoveToFront(el)
	return entry.Artifact, true
}

func (c *Cache) store(fingerprint string, art models.ArtifactResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[fingerprint]; ok {
		entry := el.Value.(*models.CacheEntry)
		entry.Artifact = art
		entry.CreatedAt = now
		entry.ExpiresAt = now.Add(ttl)
		c.ll.MoveToFront(el)
		return
	}

	c.items[fingerprint] = c.ll.PushFront(&models.CacheEntry{
		Fingerprint: fingerprint,
		Artifact:    art,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	})

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*models.CacheEntry).Fingerprint)
		c.evictions.Add(1)
	}
}
