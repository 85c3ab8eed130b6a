// Package checker verifies that external URLs exist.
//
// # Architecture
//
// A Checker probes URLs over HTTP(S) with a bounded number of concurrent
// requests. Every probe goes through a Cache, which is the only shared
// mutable structure of a run:
//
//   - a fresh cached verdict short-circuits without touching the network
//   - concurrent callers asking for the same uncached URL share a single
//     in-flight request (golang.org/x/sync/singleflight)
//   - verdicts are written to the cache as soon as they are known
//
// The cache is split into shards with their own locks, so lookups for
// different URLs rarely contend.
//
// # Probe policy
//
//   - HEAD first; 405 and 501 fall back to GET
//   - redirects are followed up to a configured depth
//   - 2xx is ok, 4xx/5xx is broken unless the code is ignored
//   - network errors are retried with exponential backoff, then reported
//     as "unreachable"
//   - cancellation of the run turns in-flight checks into "timeout" skips,
//     which are not cached
//
// .onion hosts are routed through a separate Tor transport when one is
// configured and skipped otherwise.
package checker
