// Package store persists deduplicated (hash, phone) records. Two backends
// implement the same contract: Postgres over pgx for the production path and
// embedded SQLite for single-host loads. The variant is chosen once at
// construction and never branched on again.
package store

import (
	"context"
	"fmt"

	"github.com/TomerMadmon/md5-cracker/internal/source"
)

// Backend names accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config selects and parameterizes a store backend.
type Config struct {
	Backend string `yaml:"backend"`
	// DSN is the Postgres connection string (postgres backend).
	DSN string `yaml:"dsn"`
	// Path is the database file (sqlite backend).
	Path string `yaml:"path"`
}

// Backend is a durable keyed store with a uniqueness constraint on the key
// and an unconstrained staging table beside it.
type Backend interface {
	// Begin opens a dedicated session for one task. Sessions are never
	// shared across concurrent tasks; each carries its own transaction.
	Begin(ctx context.Context, taskID string) (Session, error)

	// Count returns the number of rows in the main table.
	Count(ctx context.Context) (int64, error)

	// Clear empties the main and staging tables.
	Clear(ctx context.Context) error

	// Optimize refreshes store statistics after a bulk load.
	Optimize(ctx context.Context) error

	Close() error
}

// Session is one task's store transaction. All operations are part of a
// single transaction; nothing is visible to other sessions until Commit.
type Session interface {
	// ClearStaging removes this task's rows from the staging table.
	ClearStaging(ctx context.Context) error

	// Stage appends a batch of records to the staging table.
	Stage(ctx context.Context, records []source.Record) error

	// Merge inserts staged rows into the main table, skipping keys that
	// already exist. Returns the number of rows actually inserted.
	Merge(ctx context.Context) (int64, error)

	Commit(ctx context.Context) error

	// Rollback abandons the transaction. Safe to call after Commit.
	Rollback(ctx context.Context) error
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case BackendPostgres:
		return NewPostgres(ctx, cfg.DSN)
	case BackendSQLite:
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
