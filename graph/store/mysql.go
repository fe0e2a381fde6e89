package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Backend.
//
// Designed for:
//   - Production orchestrators with several workers sharing one database
//   - Executions that must survive process restarts
//   - Keeping the interrupt audit trail next to the execution records
//
// Conditional writes rely on InnoDB row locking: BulkMarkDiscontinuing is one
// UPDATE statement, so the status predicate and the write are atomic.
type MySQLStore struct {
	*sqlStore
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS plan_executions (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		UNIQUE KEY unique_plan_id (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS execution_nodes (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(255) NOT NULL,
		parent_id VARCHAR(255) NOT NULL DEFAULT '',
		plan_execution_id VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		leaf TINYINT(1) NOT NULL DEFAULT 1,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		UNIQUE KEY unique_node_id (id),
		INDEX idx_nodes_plan_status (plan_execution_id, status),
		INDEX idx_nodes_parent (parent_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS interrupts (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(255) NOT NULL,
		type VARCHAR(32) NOT NULL,
		execution_id VARCHAR(255) NOT NULL,
		node_id VARCHAR(255) NOT NULL DEFAULT '',
		state VARCHAR(32) NOT NULL,
		config JSON NOT NULL,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		UNIQUE KEY unique_interrupt_id (id),
		INDEX idx_interrupts_execution_state (execution_id, state)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables
//	or the dsn field of a config file kept out of version control.
//
// Example:
//
//	st, err := store.NewMySQLStore(os.Getenv("MYSQL_DSN"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)                  // Maximum open connections
	db.SetMaxIdleConns(5)                   // Keep idle connections for reuse
	db.SetConnMaxLifetime(5 * time.Minute)  // Max connection lifetime (prevent stale connections)
	db.SetConnMaxIdleTime(10 * time.Minute) // Max idle time before closing

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore{sqlStore: newSQLStore(db)}
	if err := st.migrate(ctx, mysqlSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

// Stats returns connection pool statistics.
func (m *MySQLStore) Stats() sql.DBStats {
	return m.db.Stats()
}
