package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// DocumentPool processes documents concurrently with a bounded number of
// workers.
type DocumentPool struct {
	concurrency int
	logger      *slog.Logger
}

// PoolOption configures a DocumentPool.
type PoolOption func(*DocumentPool)

// WithPoolLogger sets a custom logger for the pool.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *DocumentPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithConcurrency sets the maximum number of documents processed at once.
// Non-positive values keep the default of runtime.NumCPU().
func WithConcurrency(n int) PoolOption {
	return func(p *DocumentPool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewDocumentPool creates a pool.
func NewDocumentPool(opts ...PoolOption) *DocumentPool {
	p := &DocumentPool{
		concurrency: runtime.NumCPU(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process calls fn for every path, at most concurrency at a time. The
// first error cancels the remaining work and is returned. Paths not yet
// started when ctx is cancelled are skipped and ctx.Err() is returned.
func (p *DocumentPool) Process(ctx context.Context, paths []string, fn func(ctx context.Context, path string) error) error {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, path)
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	p.logger.Debug("document pool finished",
		"documents", len(paths),
		"concurrency", p.concurrency,
		"elapsed", time.Since(start),
	)
	return err
}
