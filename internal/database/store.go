package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/linkproof/internal/model"
)

// FileName is the database file created inside the cache directory.
const FileName = "linkproof.db"

// Store provides SQLite-based storage for cached external checks and run
// history. It satisfies checker.Store.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if they
	// don't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store in dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rwc"
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw"
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	-- Last successful verdict per normalized external URL.
	CREATE TABLE IF NOT EXISTS external_checks (
		url TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		reason TEXT,
		status_code INTEGER,
		checked_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checks_checked_at ON external_checks(checked_at);

	-- One row per run, newest first in the history command.
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		documents INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		broken INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		ignored INTEGER NOT NULL,
		pass INTEGER NOT NULL,
		interrupted INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_root ON runs(root);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// LoadChecks returns the checks recorded at or after since, ordered by URL.
func (s *Store) LoadChecks(ctx context.Context, since time.Time) ([]model.CachedCheck, error) {
	query := `
	SELECT url, status, reason, status_code, checked_at
	FROM external_checks
	WHERE checked_at >= ?
	ORDER BY url
	`
	rows, err := s.db.QueryContext(ctx, query, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query checks: %w", err)
	}
	defer rows.Close()

	var checks []model.CachedCheck
	for rows.Next() {
		var (
			check      model.CachedCheck
			status     string
			reason     sql.NullString
			statusCode sql.NullInt64
			checkedAt  int64
		)
		if err := rows.Scan(&check.URL, &status, &reason, &statusCode, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		parsed, err := model.ParseStatus(status)
		if err != nil {
			continue
		}
		check.Status = parsed
		check.Reason = reason.String
		check.StatusCode = int(statusCode.Int64)
		check.CheckedAt = time.Unix(0, checkedAt).UTC()
		checks = append(checks, check)
	}
	return checks, rows.Err()
}

// SaveChecks inserts or replaces the given checks in one transaction.
func (s *Store) SaveChecks(ctx context.Context, checks []model.CachedCheck) error {
	if len(checks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO external_checks (url, status, reason, status_code, checked_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		status = excluded.status,
		reason = excluded.reason,
		status_code = excluded.status_code,
		checked_at = excluded.checked_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range checks {
		if _, err := stmt.ExecContext(ctx, c.URL, c.Status.String(), c.Reason, c.StatusCode, c.CheckedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to save check for %s: %w", c.URL, err)
		}
	}
	return tx.Commit()
}

// CountChecks returns the number of stored checks.
func (s *Store) CountChecks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM external_checks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count checks: %w", err)
	}
	return n, nil
}

// PruneChecks deletes checks recorded before cutoff and returns how many
// were removed.
func (s *Store) PruneChecks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM external_checks WHERE checked_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune checks: %w", err)
	}
	return res.RowsAffected()
}

// ClearChecks deletes every stored check.
func (s *Store) ClearChecks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM external_checks")
	if err != nil {
		return 0, fmt.Errorf("failed to clear checks: %w", err)
	}
	return res.RowsAffected()
}
