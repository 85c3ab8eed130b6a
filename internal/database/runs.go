package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/linkproof/internal/model"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the summary of one stored run.
type RunRecord struct {
	ID        string
	Root      string
	StartedAt time.Time
	Duration  time.Duration

	DocumentsChecked int
	Counts           model.Counts
	Pass             bool
	Interrupted      bool
}

// SaveRun stores a finished run together with its report.
func (s *Store) SaveRun(ctx context.Context, id string, startedAt time.Time, duration time.Duration, report *model.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO runs (id, root, started_at, duration_ms, documents, ok, broken, skipped, ignored, pass, interrupted, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	c := report.Counts
	_, err = s.db.ExecContext(ctx, query,
		id,
		report.Root,
		startedAt.UTC().Format(runTimeFormat),
		duration.Milliseconds(),
		report.DocumentsChecked,
		c.OK, c.Broken, c.Skipped, c.Ignored,
		boolToInt(report.Pass),
		boolToInt(report.Interrupted),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. A root other than ""
// restricts the list to runs over that site directory.
func (s *Store) ListRuns(ctx context.Context, root string, limit int) ([]RunRecord, error) {
	query := `
	SELECT id, root, started_at, duration_ms, documents, ok, broken, skipped, ignored, pass, interrupted
	FROM runs
	WHERE (? = '' OR root = ?)
	ORDER BY started_at DESC, id
	LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, root, root, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			startedAt         string
			durationMS        int64
			pass, interrupted int
		)
		if err := rows.Scan(&r.ID, &r.Root, &startedAt, &durationMS, &r.DocumentsChecked,
			&r.Counts.OK, &r.Counts.Broken, &r.Counts.Skipped, &r.Counts.Ignored, &pass, &interrupted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(startedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Pass = pass != 0
		r.Interrupted = interrupted != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the report stored for a run.
func (s *Store) GetRun(ctx context.Context, id string) (*model.Report, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, "SELECT report_json FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	var report model.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// runTimeFormat has fixed-width fractional seconds so that started_at
// sorts chronologically as text.
const runTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats are tried in order by parseTimestamp. The later entries
// cover rows edited by hand with the sqlite3 shell.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
