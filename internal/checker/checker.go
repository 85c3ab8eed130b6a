package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/nao1215/linkproof/internal/model"
	"github.com/nao1215/linkproof/internal/tor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Reasons attached to external check outcomes.
const (
	ReasonOffline              = "external checks disabled"
	ReasonTimeout              = "timeout"
	ReasonUnreachable          = "unreachable"
	ReasonTooManyRedirects     = "too many redirects"
	ReasonUnfollowableRedirect = "unfollowable redirect"
	ReasonNotWebURL            = "not a web URL"
	ReasonInvalidURL           = "invalid URL"
	ReasonOnionWithoutTor      = "onion service requires a Tor proxy"
)

// maxDrainBytes bounds how much of a response body is read before closing,
// so keep-alive connections can be reused without downloading large files.
const maxDrainBytes = 64 << 10

var errTooManyRedirects = errors.New("too many redirects")

// Checker probes external URLs. It is safe for concurrent use.
type Checker struct {
	cache  *Cache
	sem    *semaphore.Weighted
	logger *slog.Logger

	client      *http.Client
	onionClient *http.Client

	transport      http.RoundTripper
	onionTransport http.RoundTripper

	workers         int
	timeout         time.Duration
	maxRedirects    int
	retries         int
	backoff         time.Duration
	ignoredStatuses map[int]bool
	userAgent       string
	headers         map[string]string
	offline         bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithCache shares an existing cache, for example one seeded from disk.
func WithCache(cache *Cache) Option {
	return func(c *Checker) {
		c.cache = cache
	}
}

// WithWorkers bounds the number of concurrent network probes.
func WithWorkers(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRedirects sets how many redirects are followed before a URL is
// reported as broken.
func WithMaxRedirects(n int) Option {
	return func(c *Checker) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithRetries sets how many times a network error is retried and the delay
// before the first retry. The delay doubles on every further attempt.
func WithRetries(retries int, backoff time.Duration) Option {
	return func(c *Checker) {
		if retries >= 0 {
			c.retries = retries
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// WithIgnoredStatusCodes treats the given HTTP status codes as ok.
func WithIgnoredStatusCodes(codes []int) Option {
	return func(c *Checker) {
		for _, code := range codes {
			c.ignoredStatuses[code] = true
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every probe.
func WithUserAgent(ua string) Option {
	return func(c *Checker) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeaders adds fixed headers to every probe.
func WithHeaders(headers map[string]string) Option {
	return func(c *Checker) {
		c.headers = headers
	}
}

// WithOffline disables all network access; every web URL is skipped.
func WithOffline(offline bool) Option {
	return func(c *Checker) {
		c.offline = offline
	}
}

// WithTransport replaces the transport used for clearnet URLs.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Checker) {
		c.transport = rt
	}
}

// WithOnionTransport sets the transport used for .onion hosts, typically
// one dialing through a Tor SOCKS proxy. Without it .onion URLs are skipped.
func WithOnionTransport(rt http.RoundTripper) Option {
	return func(c *Checker) {
		c.onionTransport = rt
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		workers:         4 * runtime.NumCPU(),
		timeout:         10 * time.Second,
		maxRedirects:    3,
		retries:         2,
		backoff:         250 * time.Millisecond,
		ignoredStatuses: make(map[int]bool),
		userAgent:       "linkproof",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.cache == nil {
		c.cache = NewCache(0)
	}
	if c.transport == nil {
		c.transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        c.workers * 2,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: c.timeout,
		}
	}

	c.sem = semaphore.NewWeighted(int64(c.workers))
	c.client = c.newClient(c.transport)
	if c.onionTransport != nil {
		c.onionClient = c.newClient(c.onionTransport)
	}
	return c
}

func (c *Checker) newClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &headerTransport{base: rt, userAgent: c.userAgent, headers: c.headers},
		Timeout:   c.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > c.maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
}

// Cache returns the cache the checker reads and writes.
func (c *Checker) Cache() *Cache {
	return c.cache
}

// Check returns the verdict for one external URL. The URL should already be
// normalized so that equivalent spellings share a cache entry.
func (c *Checker) Check(ctx context.Context, rawURL string) model.Outcome {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.Broken(ReasonInvalidURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "mailto", "tel":
		return model.Skipped(ReasonNotWebURL)
	default:
		return model.Broken(ReasonInvalidURL)
	}
	if u.Host == "" {
		return model.Broken(ReasonInvalidURL)
	}

	if c.offline {
		return model.Skipped(ReasonOffline)
	}
	if out, ok := c.cache.Get(rawURL); ok {
		return out
	}

	out, ok := c.cache.do(ctx, rawURL, func() model.Outcome {
		out := c.probe(ctx, u)
		if out.Reason != ReasonTimeout {
			c.cache.Put(rawURL, out)
		}
		return out
	})
	if !ok {
		return model.Skipped(ReasonTimeout)
	}
	return out
}

// CheckAll checks every URL, at most workers at a time, and returns the
// verdicts keyed by URL. Cancellation never loses entries: URLs that were
// not checked in time are reported as "timeout" skips.
func (c *Checker) CheckAll(ctx context.Context, urls []string) map[string]model.Outcome {
	results := make(map[string]model.Outcome, len(urls))
	outcomes := make([]model.Outcome, len(urls))

	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, u := range urls {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = model.Skipped(ReasonTimeout)
				return nil
			}
			outcomes[i] = c.Check(ctx, u)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	for i, u := range urls {
		results[u] = outcomes[i]
	}
	return results
}

func (c *Checker) probe(ctx context.Context, u *url.URL) model.Outcome {
	client := c.client
	if tor.IsOnionHost(u.Hostname()) {
		if c.onionClient == nil {
			return model.Skipped(ReasonOnionWithoutTor)
		}
		client = c.onionClient
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return model.Skipped(ReasonTimeout)
	}
	defer c.sem.Release(1)

	delay := c.backoff
	for attempt := 0; ; attempt++ {
		out, err := c.request(ctx, client, u)
		if err == nil {
			return out
		}
		if ctx.Err() != nil {
			return model.Skipped(ReasonTimeout)
		}
		if errors.Is(err, errTooManyRedirects) {
			return model.Broken(ReasonTooManyRedirects)
		}

		c.logger.Debug("external check failed",
			"url", u.String(),
			"attempt", attempt+1,
			"error", err,
		)
		if attempt >= c.retries {
			return model.Broken(ReasonUnreachable)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Skipped(ReasonTimeout)
		case <-timer.C:
		}
		delay *= 2
	}
}

// request performs one HEAD probe, falling back to GET when the server does
// not support HEAD.
func (c *Checker) request(ctx context.Context, client *http.Client, u *url.URL) (model.Outcome, error) {
	code, err := c.do(ctx, client, http.MethodHead, u)
	if err != nil {
		return model.Outcome{}, err
	}
	if code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented {
		code, err = c.do(ctx, client, http.MethodGet, u)
		if err != nil {
			return model.Outcome{}, err
		}
	}
	return c.classify(code), nil
}

func (c *Checker) do(ctx context.Context, client *http.Client, method string, u *url.URL) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes)) //nolint:errcheck // draining is best effort
	return resp.StatusCode, nil
}

func (c *Checker) classify(code int) model.Outcome {
	switch {
	case c.ignoredStatuses[code]:
		return model.Outcome{Status: model.StatusOK, Reason: fmt.Sprintf("HTTP %d ignored", code), StatusCode: code}
	case code >= 200 && code < 300:
		return model.Outcome{Status: model.StatusOK, StatusCode: code}
	case code >= 300 && code < 400:
		return model.Outcome{Status: model.StatusBroken, Reason: ReasonUnfollowableRedirect, StatusCode: code}
	default:
		return model.Outcome{Status: model.StatusBroken, Reason: fmt.Sprintf("HTTP %d", code), StatusCode: code}
	}
}

// headerTransport sets the User-Agent and configured headers on every
// request, including the ones issued while following redirects.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}
