package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the newest migration this build knows.
const SchemaVersion = 1

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS meta (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS data_vars (
  address INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  width INTEGER NOT NULL,
  type_class TEXT NOT NULL DEFAULT 'other',
  element TEXT NOT NULL DEFAULT '',
  element_width INTEGER NOT NULL DEFAULT 0,
  element_count INTEGER NOT NULL DEFAULT 0,
  readable INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS data_var_values (
  data_var INTEGER NOT NULL REFERENCES data_vars(address) ON DELETE CASCADE,
  idx INTEGER NOT NULL,
  value INTEGER NOT NULL,
  PRIMARY KEY (data_var, idx)
);
CREATE TABLE IF NOT EXISTS functions (
  address INTEGER PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS code_refs (
  target INTEGER NOT NULL,
  from_fn INTEGER NOT NULL,
  PRIMARY KEY (target, from_fn)
);
CREATE TABLE IF NOT EXISTS tree_groups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  parent_id INTEGER REFERENCES tree_groups(id) ON DELETE CASCADE,
  name TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tree_groups_parent ON tree_groups(parent_id);
CREATE TABLE IF NOT EXISTS group_functions (
  group_id INTEGER NOT NULL REFERENCES tree_groups(id) ON DELETE CASCADE,
  address INTEGER NOT NULL REFERENCES functions(address) ON DELETE CASCADE,
  PRIMARY KEY (group_id, address)
);
CREATE TABLE IF NOT EXISTS group_data_vars (
  group_id INTEGER NOT NULL REFERENCES tree_groups(id) ON DELETE CASCADE,
  address INTEGER NOT NULL,
  PRIMARY KEY (group_id, address)
);
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  started_at_utc TEXT NOT NULL,
  finished_at_utc TEXT NOT NULL,
  dry_run INTEGER NOT NULL DEFAULT 0,
  symbols INTEGER NOT NULL DEFAULT 0,
  tables INTEGER NOT NULL DEFAULT 0,
  groups_created INTEGER NOT NULL DEFAULT 0,
  renamed INTEGER NOT NULL DEFAULT 0,
  unchanged INTEGER NOT NULL DEFAULT 0,
  placeholder INTEGER NOT NULL DEFAULT 0,
  constructors INTEGER NOT NULL DEFAULT 0,
  thunks INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_utc);
`,
	},
}

// EnsureSchema applies every migration newer than the database.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("%w: version %d is newer than supported version %d", ErrSchemaTooNew, current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
