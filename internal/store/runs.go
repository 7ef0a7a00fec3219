package store

import (
	"context"
	"fmt"
	"time"
)

// timeFormat is fixed width so timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Run is one recorded sorting pass.
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	DryRun   bool

	Symbols      int
	Tables       int
	Groups       int
	Renamed      int
	Unchanged    int
	Placeholder  int
	Constructors int
	Thunks       int
	Skipped      int
	Failed       int
}

// RecordRun appends r to the run history.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (
  id, started_at_utc, finished_at_utc, dry_run, symbols, tables, groups_created,
  renamed, unchanged, placeholder, constructors, thunks, skipped, failed
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Started.UTC().Format(timeFormat),
		r.Finished.UTC().Format(timeFormat),
		r.DryRun,
		r.Symbols, r.Tables, r.Groups,
		r.Renamed, r.Unchanged, r.Placeholder, r.Constructors, r.Thunks, r.Skipped, r.Failed,
	)
	if err != nil {
		return fmt.Errorf("store: record run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns the run history, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at_utc, finished_at_utc, dry_run, symbols, tables, groups_created,
  renamed, unchanged, placeholder, constructors, thunks, skipped, failed
FROM runs ORDER BY started_at_utc DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.DryRun, &r.Symbols, &r.Tables, &r.Groups,
			&r.Renamed, &r.Unchanged, &r.Placeholder, &r.Constructors, &r.Thunks, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if r.Started, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("store: run %s: %w", r.ID, err)
		}
		if r.Finished, err = time.Parse(timeFormat, finished); err != nil {
			return nil, fmt.Errorf("store: run %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
