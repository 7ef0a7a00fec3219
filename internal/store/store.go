// Package store keeps a program in a SQLite project database and exposes
// it as a host.Program. The edit scope of a run is one SQL transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/logging"
)

const driverName = "sqlite"

const (
	metaAnalysis    = "analysis_state"
	metaAddressSize = "address_size"
)

var (
	ErrEmptyPath    = errors.New("store: path must not be empty")
	ErrNoProgram    = errors.New("store: no program imported")
	ErrSchemaTooNew = errors.New("store: schema is newer than this build")
	ErrTxBusy       = errors.New("store: another transaction is open")
)

// Store is an open project database.
type Store struct {
	path string
	db   *sql.DB
	log  zerolog.Logger

	mu   sync.Mutex
	open bool
}

var _ host.Program = (*Store)(nil)

// Open opens or creates the project database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, ErrEmptyPath
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("store: %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", cleanPath, err)
	}
	// One connection keeps the foreign_keys pragma and the edit scope on
	// the same session.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: initialize schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db, log: logging.Component(logger, "store")}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) meta(ctx context.Context, q querier, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("store: read meta %s: %w", key, err)
	}
	return v, true, nil
}

func setMeta(ctx context.Context, q querier, key, value string) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return fmt.Errorf("store: write meta %s: %w", key, err)
	}
	return nil
}

func (s *Store) AnalysisState(ctx context.Context) (host.AnalysisState, error) {
	v, ok, err := s.meta(ctx, s.db, metaAnalysis)
	if err != nil || !ok {
		return host.StateIdle, err
	}
	return host.ParseAnalysisState(v), nil
}

// SetAnalysisState records the analysis state.
func (s *Store) SetAnalysisState(ctx context.Context, state host.AnalysisState) error {
	return setMeta(ctx, s.db, metaAnalysis, state.String())
}

// AddressSize returns the pointer width of the imported program.
func (s *Store) AddressSize(ctx context.Context) (int, error) {
	return s.addressSize(ctx, s.db)
}

func (s *Store) addressSize(ctx context.Context, q querier) (int, error) {
	v, ok, err := s.meta(ctx, q, metaAddressSize)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoProgram
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("store: invalid address size %q: %w", v, err)
	}
	return n, nil
}

// Begin opens the edit scope. Only one may be open at a time.
func (s *Store) Begin(ctx context.Context) (host.Tx, error) {
	return s.begin(ctx)
}

func (s *Store) begin(ctx context.Context) (*Tx, error) {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return nil, ErrTxBusy
	}
	s.open = true
	s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("store: begin: %w", err)
	}

	size, err := s.addressSize(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		s.release()
		return nil, err
	}
	return &Tx{s: s, tx: tx, addressSize: size}, nil
}

func (s *Store) release() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
