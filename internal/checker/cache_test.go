package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/linkproof/internal/model"
)

type memoryStore struct {
	mu      sync.Mutex
	checks  []model.CachedCheck
	since   time.Time
	loadErr error
}

func (s *memoryStore) LoadChecks(_ context.Context, since time.Time) ([]model.CachedCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = since
	return s.checks, s.loadErr
}

func (s *memoryStore) SaveChecks(_ context.Context, checks []model.CachedCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, checks...)
	return nil
}

// TestCacheLoad tests which persisted entries are trusted.
func TestCacheLoad(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(time.Hour)
	c.now = func() time.Time { return now }

	loaded := c.Load([]model.CachedCheck{
		{URL: "https://fresh.example/", CheckedAt: now.Add(-30 * time.Minute), Outcome: model.OK("")},
		{URL: "https://stale.example/", CheckedAt: now.Add(-2 * time.Hour), Outcome: model.OK("")},
		{URL: "https://broken.example/", CheckedAt: now.Add(-time.Minute), Outcome: model.Broken("HTTP 404")},
	})
	if loaded != 1 {
		t.Errorf("loaded %d entries, expected 1", loaded)
	}
	if _, ok := c.Get("https://fresh.example/"); !ok {
		t.Error("expected fresh entry to be served")
	}
	if _, ok := c.Get("https://stale.example/"); ok {
		t.Error("expected stale entry to be rejected")
	}
	if _, ok := c.Get("https://broken.example/"); ok {
		t.Error("expected broken entry to be rejected")
	}

	// Entries age out while the cache is in use.
	now = now.Add(time.Hour)
	if _, ok := c.Get("https://fresh.example/"); ok {
		t.Error("expected entry to expire")
	}
}

// TestCacheLiveEntriesStayFresh tests that this run's verdicts ignore the TTL.
func TestCacheLiveEntriesStayFresh(t *testing.T) {
	t.Parallel()

	c := NewCache(0)
	c.Put("https://example.com/", model.Broken("HTTP 500"))
	out, ok := c.Get("https://example.com/")
	if !ok || out.Reason != "HTTP 500" {
		t.Errorf("got %+v (%v), expected live entry", out, ok)
	}
}

// TestCacheSnapshot tests that only ok verdicts from this run are persisted.
func TestCacheSnapshot(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Hour)
	c.Load([]model.CachedCheck{{URL: "https://old.example/", CheckedAt: time.Now(), Outcome: model.OK("")}})
	c.Put("https://b.example/", model.OK(""))
	c.Put("https://a.example/", model.OK(""))
	c.Put("https://c.example/", model.Broken("HTTP 404"))

	snap := c.Snapshot()
	if len(snap) != 2 || snap[0].URL != "https://a.example/" || snap[1].URL != "https://b.example/" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if c.Len() != 4 {
		t.Errorf("got %d entries, expected 4", c.Len())
	}
}

// TestCacheStoreRoundTrip tests loading from and saving to a Store.
func TestCacheStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := &memoryStore{checks: []model.CachedCheck{
		{URL: "https://kept.example/", CheckedAt: time.Now(), Outcome: model.OK("")},
	}}

	c := NewCache(24 * time.Hour)
	n, err := c.LoadFrom(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("loaded %d, expected 1", n)
	}
	if time.Since(store.since) < 23*time.Hour {
		t.Errorf("store queried since %v, expected about a day ago", store.since)
	}

	c.Put("https://new.example/", model.OK(""))
	if err := c.SaveTo(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	if len(store.checks) != 2 || store.checks[1].URL != "https://new.example/" {
		t.Errorf("unexpected stored checks %+v", store.checks)
	}

	failing := &memoryStore{loadErr: errors.New("disk on fire")}
	if _, err := NewCache(time.Hour).LoadFrom(context.Background(), failing); err == nil {
		t.Error("expected load error to propagate")
	}
}

// TestCacheConcurrentAccess exercises all shards from many goroutines.
func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Hour)
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := fmt.Sprintf("https://example.com/%d", i)
			c.Put(url, model.OK(""))
			if _, ok := c.Get(url); !ok {
				t.Errorf("missing %s", url)
			}
		}()
	}
	wg.Wait()

	if c.Len() != 64 {
		t.Errorf("got %d entries, expected 64", c.Len())
	}
}
