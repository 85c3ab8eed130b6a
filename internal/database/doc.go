// Package database provides the SQLite store behind the persistent
// external check cache and the run history.
//
// The store holds two tables:
//   - external_checks: the last successful verdict per normalized URL, read
//     back by later runs while it is younger than cache_ttl_seconds
//   - runs: one row per check run with its counts and the JSON report, for
//     the history command
//
// Design decision: SQLite via modernc.org/sqlite keeps the binary CGO-free
// and the cache a single file under the XDG cache directory. WAL mode lets
// the history command read while a run is writing.
package database
