package checker

import (
	"context"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/linkproof/internal/model"
	"golang.org/x/sync/singleflight"
)

const shardCount = 32

// Store persists cached checks between runs.
type Store interface {
	// LoadChecks returns the checks recorded at or after since.
	LoadChecks(ctx context.Context, since time.Time) ([]model.CachedCheck, error)

	// SaveChecks inserts or replaces the given checks.
	SaveChecks(ctx context.Context, checks []model.CachedCheck) error
}

type cacheEntry struct {
	check model.CachedCheck

	// live marks entries produced by this run. They stay fresh for the rest
	// of the run regardless of the TTL.
	live bool
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// Cache maps normalized URLs to their most recent verdict and coordinates
// in-flight checks. The zero value is not usable; create one with NewCache.
type Cache struct {
	shards [shardCount]cacheShard
	group  singleflight.Group
	ttl    time.Duration
	now    func() time.Time
}

// NewCache creates a cache whose persisted entries are trusted for ttl.
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{ttl: ttl, now: time.Now}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]cacheEntry)
	}
	return c
}

func (c *Cache) shard(url string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url)) //nolint:errcheck // hash.Hash never returns an error
	return &c.shards[h.Sum32()%shardCount]
}

// Get returns the fresh verdict for url, if any.
func (c *Cache) Get(url string) (model.Outcome, bool) {
	s := c.shard(url)
	s.mu.RLock()
	e, ok := s.entries[url]
	s.mu.RUnlock()

	if !ok || !c.fresh(e) {
		return model.Outcome{}, false
	}
	return e.check.Outcome, true
}

func (c *Cache) fresh(e cacheEntry) bool {
	if e.live {
		return true
	}
	return c.now().Sub(e.check.CheckedAt) < c.ttl
}

// Put records a verdict produced by this run.
func (c *Cache) Put(url string, out model.Outcome) {
	s := c.shard(url)
	s.mu.Lock()
	s.entries[url] = cacheEntry{
		check: model.CachedCheck{URL: url, CheckedAt: c.now(), Outcome: out},
		live:  true,
	}
	s.mu.Unlock()
}

// Load seeds the cache with persisted checks. Only ok verdicts still within
// the freshness window are accepted; it returns how many were.
func (c *Cache) Load(checks []model.CachedCheck) int {
	loaded := 0
	for _, check := range checks {
		e := cacheEntry{check: check}
		if check.Status != model.StatusOK || !c.fresh(e) {
			continue
		}
		s := c.shard(check.URL)
		s.mu.Lock()
		if _, exists := s.entries[check.URL]; !exists {
			s.entries[check.URL] = e
			loaded++
		}
		s.mu.Unlock()
	}
	return loaded
}

// Snapshot returns the ok verdicts produced by this run, sorted by URL.
// Broken and skipped verdicts are never persisted so they are re-checked
// on the next run.
func (c *Cache) Snapshot() []model.CachedCheck {
	var out []model.CachedCheck
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, e := range s.entries {
			if e.live && e.check.Status == model.StatusOK {
				out = append(out, e.check)
			}
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b model.CachedCheck) int {
		return strings.Compare(a.URL, b.URL)
	})
	return out
}

// Len returns the number of cached entries, fresh or not.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// do runs fn once per url among concurrent callers. Callers that arrive
// while a check is in flight wait for its result; callers that give up
// (ctx done) receive ok=false.
func (c *Cache) do(ctx context.Context, url string, fn func() model.Outcome) (model.Outcome, bool) {
	ch := c.group.DoChan(url, func() (any, error) {
		if out, ok := c.Get(url); ok {
			return out, nil
		}
		return fn(), nil
	})

	select {
	case <-ctx.Done():
		return model.Outcome{}, false
	case res := <-ch:
		out, _ := res.Val.(model.Outcome)
		return out, true
	}
}

// LoadFrom seeds the cache from a store.
func (c *Cache) LoadFrom(ctx context.Context, store Store) (int, error) {
	checks, err := store.LoadChecks(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return 0, err
	}
	return c.Load(checks), nil
}

// SaveTo persists the ok verdicts of this run.
func (c *Cache) SaveTo(ctx context.Context, store Store) error {
	snapshot := c.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	return store.SaveChecks(ctx, snapshot)
}
