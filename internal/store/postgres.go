package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TomerMadmon/md5-cracker/internal/errkind"
	"github.com/TomerMadmon/md5-cracker/internal/source"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS md5_phone_map_bin (
	md5_hash     BYTEA PRIMARY KEY,
	phone_number TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_md5 (
	task_id      TEXT,
	md5_hex      TEXT,
	phone_number TEXT
);
`

// Postgres implements Backend over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, errkind.Wrap(classifyPg(err), fmt.Errorf("create schema: %w", err))
	}
	return &Postgres{pool: pool}, nil
}

// Begin acquires a pooled connection and opens the task's transaction.
func (p *Postgres) Begin(ctx context.Context, taskID string) (Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, errkind.Wrap(classifyPg(err), fmt.Errorf("acquire session: %w", err))
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, errkind.Wrap(classifyPg(err), fmt.Errorf("begin transaction: %w", err))
	}
	return &pgSession{conn: conn, tx: tx, taskID: taskID}, nil
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM md5_phone_map_bin`).Scan(&n)
	if err != nil {
		return 0, errkind.Wrap(classifyPg(err), err)
	}
	return n, nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	// Full reset path, exclusive by intent, so TRUNCATE is fine here.
	if _, err := p.pool.Exec(ctx, `TRUNCATE md5_phone_map_bin, staging_md5`); err != nil {
		return errkind.Wrap(classifyPg(err), fmt.Errorf("clear store: %w", err))
	}
	return nil
}

func (p *Postgres) Optimize(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `ANALYZE md5_phone_map_bin`); err != nil {
		return errkind.Wrap(classifyPg(err), fmt.Errorf("analyze: %w", err))
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgSession struct {
	conn   *pgxpool.Conn
	tx     pgx.Tx
	taskID string
	done   bool
}

func (s *pgSession) ClearStaging(ctx context.Context) error {
	// Plain DELETE keeps the lock row-level; TRUNCATE would take an access
	// exclusive lock and stall the sibling sessions.
	if _, err := s.tx.Exec(ctx, `DELETE FROM staging_md5 WHERE task_id = $1`, s.taskID); err != nil {
		return errkind.Wrap(classifyPg(err), fmt.Errorf("clear staging: %w", err))
	}
	return nil
}

func (s *pgSession) Stage(ctx context.Context, records []source.Record) error {
	_, err := s.tx.CopyFrom(ctx,
		pgx.Identifier{"staging_md5"},
		[]string{"task_id", "md5_hex", "phone_number"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return []any{s.taskID, hex.EncodeToString(records[i].Key[:]), records[i].Value}, nil
		}),
	)
	if err != nil {
		return errkind.Wrap(classifyPg(err), fmt.Errorf("stage batch: %w", err))
	}
	return nil
}

func (s *pgSession) Merge(ctx context.Context) (int64, error) {
	ct, err := s.tx.Exec(ctx, `
		INSERT INTO md5_phone_map_bin (md5_hash, phone_number)
		SELECT decode(md5_hex, 'hex'), phone_number
		FROM staging_md5
		WHERE task_id = $1
		ON CONFLICT (md5_hash) DO NOTHING`, s.taskID)
	if err != nil {
		return 0, errkind.Wrap(classifyPg(err), fmt.Errorf("merge: %w", err))
	}
	return ct.RowsAffected(), nil
}

func (s *pgSession) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Commit(ctx)
	s.conn.Release()
	if err != nil {
		return errkind.Wrap(classifyPg(err), fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *pgSession) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Rollback(ctx)
	s.conn.Release()
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return errkind.Wrap(classifyPg(err), fmt.Errorf("rollback: %w", err))
	}
	return nil
}

// classifyPg maps a driver error onto the failure taxonomy. SQLSTATE codes
// carry the contention cases; anything non-SQL on an established connection
// is treated as lost connectivity.
func classifyPg(err error) errkind.Kind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03": // lock_not_available
			return errkind.KindLockTimeout
		case "40P01": // deadlock_detected
			return errkind.KindDeadlock
		case "40001": // serialization_failure, same contention treatment
			return errkind.KindDeadlock
		}
		switch pgErr.Code[:2] {
		case "08", "57": // connection exceptions, operator intervention
			return errkind.KindConnectionLost
		}
		return errkind.KindSchemaViolation
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errkind.KindConnectionLost
	}
	if pgconn.Timeout(err) {
		return errkind.KindConnectionLost
	}
	return errkind.KindConnectionLost
}
