// Package store implements the Entry Store Gateway (C3): the relational
// abstraction over spot/future/perp entries, publisher records, and the
// median/OHLC/existence queries the pricing and routing components need.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pragma-network/pragma-node/pkg/logger"
)

//go:embed schema.sql
var schemaFile embed.FS

// DB wraps a single PostgreSQL connection pool.
type DB struct {
	*sql.DB
	log *logger.Logger
}

// Config holds connection-pool settings for one database.
type Config struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// New opens and pings a connection pool.
func New(cfg Config, log *logger.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("connected to database pool")
	return &DB{DB: db, log: log}, nil
}

// InitSchema applies the bootstrap schema. Production deployments run
// migrations out-of-band; this exists for local/test bring-up.
func (db *DB) InitSchema() error {
	schema, err := schemaFile.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	db.log.Info("schema initialized")
	return nil
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	db.log.Info("closing database connection")
	return db.DB.Close()
}
