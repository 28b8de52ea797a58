package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverModernc is the pure-Go driver (default, no cgo needed)
	DriverModernc = "sqlite"
	// DriverCGO is mattn/go-sqlite3
	DriverCGO = "sqlite3"
)

// Options configures the SQLite store
type Options struct {
	// Driver is DriverModernc or DriverCGO
	Driver string
	// UniqueActiveTitles enforces one active task per (owner, title)
	UniqueActiveTitles bool
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{Driver: DriverModernc, UniqueActiveTitles: true}
}

// DB is the SQLite-backed task store. It implements Store, HistoryStore and KV.
type DB struct {
	db   *sql.DB
	path string
	opts Options
}

// Open opens or creates the task database under statePath
func Open(statePath string, opts Options) (*DB, error) {
	dbPath := filepath.Join(statePath, "chorebot.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return OpenPath(dbPath, opts)
}

// OpenPath opens the database at an explicit path
func OpenPath(dbPath string, opts Options) (*DB, error) {
	if opts.Driver == "" {
		opts.Driver = DriverModernc
	}
	switch opts.Driver {
	case DriverModernc, DriverCGO:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", opts.Driver)
	}

	db, err := sql.Open(opts.Driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes serialize and PRAGMAs stick.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &DB{db: db, path: dbPath, opts: opts}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *DB) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *DB) Path() string {
	return s.path
}

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL CHECK (length(trim(title)) > 0),
				owner TEXT NOT NULL,
				when_text TEXT,
				where_text TEXT,
				importance TEXT NOT NULL DEFAULT 'normal'
					CHECK (importance IN ('urgent', 'normal', 'low')),
				category TEXT NOT NULL DEFAULT 'general'
					CHECK (category IN ('shopping', 'household', 'work', 'personal', 'general')),
				created_by TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				completed INTEGER NOT NULL DEFAULT 0,
				completed_at INTEGER,
				completed_by TEXT,
				CHECK ((completed = 0 AND completed_at IS NULL) OR (completed = 1 AND completed_at IS NOT NULL))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_owner_active ON tasks(owner, completed)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_completed_at ON tasks(completed, completed_at)`,
			`CREATE TABLE IF NOT EXISTS conversation_turns (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				chat_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
				content TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_turns_scope ON conversation_turns(chat_id, user_id, id DESC)`,
			`CREATE TABLE IF NOT EXISTS kv (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
		},
	},
}

// migrate runs schema migrations in a single transaction
func (s *DB) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration v%d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, applied_at) VALUES (?, strftime('%s','now'))`, m.version); err != nil {
			return err
		}
	}

	// The uniqueness index is a deployment option, so it is (re)applied on
	// every open rather than versioned.
	if s.opts.UniqueActiveTitles {
		if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_unique_active
			ON tasks(owner, lower(title)) WHERE completed = 0`); err != nil {
			return fmt.Errorf("unique active index: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_tasks_unique_active`); err != nil {
			return err
		}
	}

	return tx.Commit()
}
