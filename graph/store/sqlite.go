package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Backend.
//
// It stores plan executions, execution nodes and interrupts in a single-file
// database. Designed for:
//   - Development and testing with zero setup
//   - Single-process orchestrators that need persistence
//   - Prototyping before migrating to MySQL
//
// Features:
//   - Single file database (e.g., "./interrupts.db")
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//   - One writer connection, so every conditional UPDATE is serialized
//
// Schema:
//   - plan_executions: one row per execution tree
//   - execution_nodes: tree nodes with status, version and leaf flag
//   - interrupts: append-only interrupt audit trail
type SQLiteStore struct {
	*sqlStore
	path string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS plan_executions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS execution_nodes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		parent_id TEXT NOT NULL DEFAULT '',
		plan_execution_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		leaf INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	"CREATE INDEX IF NOT EXISTS idx_nodes_plan_status ON execution_nodes(plan_execution_id, status)",
	"CREATE INDEX IF NOT EXISTS idx_nodes_parent ON execution_nodes(parent_id)",
	`CREATE TABLE IF NOT EXISTS interrupts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		execution_id TEXT NOT NULL,
		node_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		config TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	"CREATE INDEX IF NOT EXISTS idx_interrupts_execution_state ON interrupts(execution_id, state)",
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./interrupts.db" - file in current directory
//   - "/tmp/interrupts.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// Example:
//
//	st, err := store.NewSQLiteStore("./interrupts.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)    // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)    // Keep connection open
	db.SetConnMaxLifetime(0) // No max lifetime for SQLite

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000", // wait up to 5 seconds for locks
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close() // Ignore close error when returning pragma error
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	st := &SQLiteStore{
		sqlStore: newSQLStore(db),
		path:     path,
	}
	if err := st.migrate(ctx, sqliteSchema); err != nil {
		_ = db.Close() // Ignore close error when returning table creation error
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
