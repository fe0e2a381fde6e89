package store

import (
	"fmt"
	"strings"
)

// Config selects and configures a Backend.
type Config struct {
	// Driver is one of "memory", "sqlite" or "mysql". Empty means "memory".
	Driver string `yaml:"driver"`

	// DSN is the SQLite file path or the MySQL data source name.
	// Ignored by the memory driver.
	DSN string `yaml:"dsn"`
}

// Open creates the Backend named by cfg.Driver.
func Open(cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemStore(), nil
	case "sqlite":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite driver requires a dsn (database path)")
		}
		return NewSQLiteStore(cfg.DSN)
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("mysql driver requires a dsn")
		}
		return NewMySQLStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
