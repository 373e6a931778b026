package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id is not in the ledger.
var ErrNotFound = errors.New("run not found")

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, output_root, format, settings_json) VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		run.OutputRoot,
		run.Format,
		nullableJSON(run.Settings),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordItem stores one item result of a run.
func (s *Store) RecordItem(ctx context.Context, item Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_items (
            run_id, position, image, output_folder, success, degraded,
            error_message, duration, stats_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.RunID,
		item.Position,
		item.Image,
		nullableString(item.OutputFolder),
		boolToInt(item.Success),
		boolToInt(item.Degraded),
		nullableString(item.ErrorMessage),
		item.Duration,
		nullableJSON(item.Stats),
	)
	if err != nil {
		return fmt.Errorf("insert run item: %w", err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, processed = ?, errors = ?, degraded = ?,
            total_time = ?, average_time = ?, cancelled = ? WHERE id = ?`,
		formatTime(run.FinishedAt),
		run.Total,
		run.Processed,
		run.Errors,
		run.Degraded,
		run.TotalTime,
		run.AverageTime,
		boolToInt(run.Cancelled),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	return nil
}

const runColumns = "id, started_at, finished_at, output_root, format, total, processed, errors, degraded, total_time, average_time, cancelled, settings_json"

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by id or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// ListItems returns the items of a run in input order.
func (s *Store) ListItems(ctx context.Context, runID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, position, image, output_folder, success, degraded, error_message, duration, stats_json
        FROM run_items WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item     Item
			folder   sql.NullString
			success  int
			degraded int
			message  sql.NullString
			stats    sql.NullString
		)
		if err := rows.Scan(&item.RunID, &item.Position, &item.Image, &folder, &success, &degraded, &message, &item.Duration, &stats); err != nil {
			return nil, fmt.Errorf("scan run item: %w", err)
		}
		item.OutputFolder = folder.String
		item.Success = success != 0
		item.Degraded = degraded != 0
		item.ErrorMessage = message.String
		if stats.Valid {
			item.Stats = []byte(stats.String)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run       Run
		started   string
		finished  sql.NullString
		cancelled int
		settings  sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&started,
		&finished,
		&run.OutputRoot,
		&run.Format,
		&run.Total,
		&run.Processed,
		&run.Errors,
		&run.Degraded,
		&run.TotalTime,
		&run.AverageTime,
		&cancelled,
		&settings,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	if finished.Valid {
		run.FinishedAt = parseTime(finished.String)
	}
	run.Cancelled = cancelled != 0
	if settings.Valid {
		run.Settings = []byte(settings.String)
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableJSON(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
