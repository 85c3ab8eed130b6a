package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/linkproof/internal/model"
)

func newTestChecker(opts ...Option) *Checker {
	base := []Option{WithRetries(1, time.Millisecond), WithTimeout(2 * time.Second)}
	return New(append(base, opts...)...)
}

// TestCheckStatusCodes tests how responses map to outcomes.
func TestCheckStatusCodes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/nowhere", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/get-only", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestChecker()
	tests := []struct {
		path   string
		status model.Status
		reason string
		code   int
	}{
		{"/ok", model.StatusOK, "", 200},
		{"/missing", model.StatusBroken, "HTTP 404", 404},
		{"/error", model.StatusBroken, "HTTP 500", 500},
		{"/moved", model.StatusOK, "", 200},
		{"/nowhere", model.StatusBroken, ReasonUnfollowableRedirect, 302},
		{"/get-only", model.StatusOK, "", 200},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			out := c.Check(context.Background(), srv.URL+tt.path)
			if out.Status != tt.status || out.Reason != tt.reason || out.StatusCode != tt.code {
				t.Errorf("got %+v, expected status=%v reason=%q code=%d", out, tt.status, tt.reason, tt.code)
			}
		})
	}
}

// TestCheckIgnoredStatusCodes tests that ignored codes are ok.
func TestCheckIgnoredStatusCodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	c := newTestChecker(WithIgnoredStatusCodes([]int{404}))
	out := c.Check(context.Background(), srv.URL+"/gone")
	if out.Status != model.StatusOK || out.Reason != "HTTP 404 ignored" {
		t.Errorf("got %+v, expected ok with ignored reason", out)
	}
}

// TestCheckRedirectLimit tests that long redirect chains are broken.
func TestCheckRedirectLimit(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/r1", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/r2", http.StatusFound) })
	mux.HandleFunc("/r2", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/r3", http.StatusFound) })
	mux.HandleFunc("/r3", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/r4", http.StatusFound) })
	mux.HandleFunc("/r4", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/end", http.StatusFound) })
	mux.HandleFunc("/end", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Run("four redirects exceed the default of three", func(t *testing.T) {
		t.Parallel()
		out := newTestChecker().Check(context.Background(), srv.URL+"/r1")
		if out.Status != model.StatusBroken || out.Reason != ReasonTooManyRedirects {
			t.Errorf("got %+v, expected too many redirects", out)
		}
	})

	t.Run("three redirects are followed", func(t *testing.T) {
		t.Parallel()
		out := newTestChecker().Check(context.Background(), srv.URL+"/r2")
		if out.Status != model.StatusOK {
			t.Errorf("got %+v, expected ok", out)
		}
	})

	t.Run("limit is configurable", func(t *testing.T) {
		t.Parallel()
		out := newTestChecker(WithMaxRedirects(4)).Check(context.Background(), srv.URL+"/r1")
		if out.Status != model.StatusOK {
			t.Errorf("got %+v, expected ok", out)
		}
	})
}

// TestCheckUnreachable tests retries against a closed server.
func TestCheckUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	out := newTestChecker().Check(context.Background(), addr+"/")
	if out.Status != model.StatusBroken || out.Reason != ReasonUnreachable {
		t.Errorf("got %+v, expected unreachable", out)
	}
}

// TestCheckRetriesThenSucceeds tests that a transient failure is retried.
func TestCheckRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("response writer cannot hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	out := newTestChecker().Check(context.Background(), srv.URL+"/flaky")
	if out.Status != model.StatusOK {
		t.Errorf("got %+v, expected ok after retry", out)
	}
	if calls.Load() != 2 {
		t.Errorf("got %d calls, expected 2", calls.Load())
	}
}

// TestCheckUsesFreshCache tests that a fresh cached ok skips the network.
func TestCheckUsesFreshCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	target := srv.URL + "/cached"
	cache := NewCache(time.Hour)
	cache.Load([]model.CachedCheck{{
		URL:       target,
		CheckedAt: time.Now().Add(-time.Minute),
		Outcome:   model.Outcome{Status: model.StatusOK, StatusCode: 200},
	}})

	c := newTestChecker(WithCache(cache))
	out := c.Check(context.Background(), target)
	if out.Status != model.StatusOK {
		t.Errorf("got %+v, expected ok", out)
	}
	if calls.Load() != 0 {
		t.Errorf("got %d network calls, expected 0", calls.Load())
	}
}

// TestCheckSingleFlight tests that concurrent checks of one URL share a request.
func TestCheckSingleFlight(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := newTestChecker(WithWorkers(16))
	target := srv.URL + "/slow"

	const n = 20
	var wg sync.WaitGroup
	outcomes := make([]model.Outcome, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = c.Check(context.Background(), target)
		}()
	}

	// Give every goroutine time to join the in-flight request.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("got %d network calls, expected 1", calls.Load())
	}
	for i, out := range outcomes {
		if out.Status != model.StatusOK {
			t.Errorf("caller %d got %+v, expected ok", i, out)
		}
	}
}

// TestCheckAll tests the bounded batch helper and its de-duplication.
func TestCheckAll(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := newTestChecker(WithWorkers(2))
	urls := []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/bad", srv.URL + "/a"}
	got := c.CheckAll(context.Background(), urls)

	if len(got) != 3 {
		t.Fatalf("got %d results, expected 3", len(got))
	}
	if got[srv.URL+"/bad"].Reason != "HTTP 410" {
		t.Errorf("got %+v for /bad", got[srv.URL+"/bad"])
	}
	if calls.Load() != 3 {
		t.Errorf("got %d network calls, expected 3", calls.Load())
	}
}

// TestCheckCancelled tests that cancellation yields uncached timeout skips.
func TestCheckCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := newTestChecker()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	target := srv.URL + "/hang"
	out := c.Check(ctx, target)
	if out.Status != model.StatusSkipped || out.Reason != ReasonTimeout {
		t.Errorf("got %+v, expected skipped timeout", out)
	}
	if _, ok := c.Cache().Get(target); ok {
		t.Error("timeouts must not be cached")
	}
}

// TestCheckWithoutNetwork tests outcomes decided before any request.
func TestCheckWithoutNetwork(t *testing.T) {
	t.Parallel()

	c := newTestChecker()
	offline := newTestChecker(WithOffline(true))
	ctx := context.Background()

	tests := []struct {
		name   string
		c      *Checker
		url    string
		status model.Status
		reason string
	}{
		{"mailto", c, "mailto:team@example.com", model.StatusSkipped, ReasonNotWebURL},
		{"tel", c, "tel:+15551234", model.StatusSkipped, ReasonNotWebURL},
		{"offline", offline, "https://example.com/", model.StatusSkipped, ReasonOffline},
		{"no host", c, "https:///path", model.StatusBroken, ReasonInvalidURL},
		{"onion without tor", c, "http://2gzyxa5ihm7nsggfxnu52rck2vv4rvmdlkiu3zzui5du4xyclen53wid.onion/", model.StatusSkipped, ReasonOnionWithoutTor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := tt.c.Check(ctx, tt.url)
			if out.Status != tt.status || out.Reason != tt.reason {
				t.Errorf("got %+v, expected %v %q", out, tt.status, tt.reason)
			}
		})
	}
}

// TestCheckSendsUserAgent tests the identifying headers.
func TestCheckSendsUserAgent(t *testing.T) {
	t.Parallel()

	var ua, custom atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		custom.Store(r.Header.Get("X-Docs-Check"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := newTestChecker(WithUserAgent("linkproof/test"), WithHeaders(map[string]string{"X-Docs-Check": "1"}))
	c.Check(context.Background(), srv.URL+"/")

	if ua.Load() != "linkproof/test" {
		t.Errorf("got User-Agent %v", ua.Load())
	}
	if custom.Load() != "1" {
		t.Errorf("got X-Docs-Check %v", custom.Load())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respond(code int) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Body:       http.NoBody,
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}
}

// TestCheckRoutesOnionHosts tests that .onion hosts use the onion transport
// and everything else the clearnet one.
func TestCheckRoutesOnionHosts(t *testing.T) {
	t.Parallel()

	onion := "http://2gzyxa5ihm7nsggfxnu52rck2vv4rvmdlkiu3zzui5du4xyclen53wid.onion/"
	c := newTestChecker(
		WithTransport(respond(http.StatusNotFound)),
		WithOnionTransport(respond(http.StatusOK)),
	)
	ctx := context.Background()

	if out := c.Check(ctx, onion); out.Status != model.StatusOK {
		t.Errorf("expected the onion transport to answer 200, got %+v", out)
	}
	if out := c.Check(ctx, "https://example.com/"); out.Status != model.StatusBroken || out.StatusCode != http.StatusNotFound {
		t.Errorf("expected the clearnet transport to answer 404, got %+v", out)
	}
}
