package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/TomerMadmon/md5-cracker/internal/errkind"
	"github.com/TomerMadmon/md5-cracker/internal/source"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS md5_phone_map_bin (
	md5_hash     BLOB PRIMARY KEY,
	phone_number TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_md5 (
	task_id      TEXT,
	md5_hex      TEXT,
	phone_number TEXT
);
`

// stageChunk bounds the rows per INSERT so the statement stays well under
// SQLite's variable limit.
const stageChunk = 500

// SQLite implements Backend on an embedded database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errkind.Wrap(classifySQLite(err), fmt.Errorf("create schema: %w", err))
	}
	return &SQLite{db: db}, nil
}

// Begin pins a connection and opens the task's transaction.
func (s *SQLite) Begin(ctx context.Context, taskID string) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, errkind.Wrap(classifySQLite(err), fmt.Errorf("acquire session: %w", err))
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, errkind.Wrap(classifySQLite(err), fmt.Errorf("begin transaction: %w", err))
	}
	return &sqliteSession{conn: conn, tx: tx, taskID: taskID}, nil
}

func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM md5_phone_map_bin`).Scan(&n)
	if err != nil {
		return 0, errkind.Wrap(classifySQLite(err), err)
	}
	return n, nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM md5_phone_map_bin`); err != nil {
		return errkind.Wrap(classifySQLite(err), fmt.Errorf("clear store: %w", err))
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM staging_md5`); err != nil {
		return errkind.Wrap(classifySQLite(err), fmt.Errorf("clear staging: %w", err))
	}
	return nil
}

func (s *SQLite) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return errkind.Wrap(classifySQLite(err), fmt.Errorf("analyze: %w", err))
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteSession struct {
	conn   *sql.Conn
	tx     *sql.Tx
	taskID string
	done   bool
}

func (s *sqliteSession) ClearStaging(ctx context.Context) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM staging_md5 WHERE task_id = ?`, s.taskID); err != nil {
		return errkind.Wrap(classifySQLite(err), fmt.Errorf("clear staging: %w", err))
	}
	return nil
}

func (s *sqliteSession) Stage(ctx context.Context, records []source.Record) error {
	for start := 0; start < len(records); start += stageChunk {
		end := start + stageChunk
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO staging_md5 (task_id, md5_hex, phone_number) VALUES `)
		args := make([]any, 0, len(chunk)*3)
		for i, rec := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?)")
			args = append(args, s.taskID, hex.EncodeToString(rec.Key[:]), rec.Value)
		}

		if _, err := s.tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return errkind.Wrap(classifySQLite(err), fmt.Errorf("stage batch: %w", err))
		}
	}
	return nil
}

func (s *sqliteSession) Merge(ctx context.Context) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO md5_phone_map_bin (md5_hash, phone_number)
		SELECT unhex(md5_hex), phone_number
		FROM staging_md5
		WHERE task_id = ?
		ON CONFLICT (md5_hash) DO NOTHING`, s.taskID)
	if err != nil {
		return 0, errkind.Wrap(classifySQLite(err), fmt.Errorf("merge: %w", err))
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, errkind.Wrap(classifySQLite(err), err)
	}
	return inserted, nil
}

func (s *sqliteSession) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Commit()
	s.conn.Close()
	if err != nil {
		return errkind.Wrap(classifySQLite(err), fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *sqliteSession) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Rollback()
	s.conn.Close()
	if err != nil && err != sql.ErrTxDone {
		return errkind.Wrap(classifySQLite(err), fmt.Errorf("rollback: %w", err))
	}
	return nil
}

// classifySQLite maps a driver error onto the failure taxonomy. The driver
// does not expose structured codes through database/sql, so busy and locked
// states are detected from the message text.
func classifySQLite(err error) errkind.Kind {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "sqlite_locked") {
		return errkind.KindLockTimeout
	}
	return errkind.KindSchemaViolation
}
