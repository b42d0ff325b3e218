package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TomerMadmon/md5-cracker/internal/source"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecords(keys ...byte) []source.Record {
	recs := make([]source.Record, len(keys))
	for i, k := range keys {
		recs[i].Key[0] = k
		recs[i].Value = "+15550000000"
	}
	return recs
}

func loadTask(t *testing.T, s *SQLite, taskID string, recs []source.Record) int64 {
	t.Helper()
	ctx := context.Background()

	sess, err := s.Begin(ctx, taskID)
	require.NoError(t, err)
	require.NoError(t, sess.ClearStaging(ctx))
	require.NoError(t, sess.Stage(ctx, recs))
	inserted, err := sess.Merge(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.ClearStaging(ctx))
	require.NoError(t, sess.Commit(ctx))
	return inserted
}

func TestSQLiteMergeDeduplicates(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	inserted := loadTask(t, s, "a.csv", testRecords(1, 2, 3))
	require.Equal(t, int64(3), inserted)

	// A second task overlapping on two keys inserts only the new one.
	inserted = loadTask(t, s, "b.csv", testRecords(2, 3, 4))
	require.Equal(t, int64(1), inserted)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), count)
}

func TestSQLiteReloadIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.Equal(t, int64(3), loadTask(t, s, "a.csv", testRecords(1, 2, 3)))

	// Re-running the same task changes nothing.
	require.Equal(t, int64(0), loadTask(t, s, "a.csv", testRecords(1, 2, 3)))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestSQLiteRollbackLeavesNothing(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx, "a.csv")
	require.NoError(t, err)
	require.NoError(t, sess.ClearStaging(ctx))
	require.NoError(t, sess.Stage(ctx, testRecords(1, 2, 3)))
	_, err = sess.Merge(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Rollback(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	// Rollback after the session ended is a no-op.
	require.NoError(t, sess.Rollback(ctx))
}

func TestSQLiteRollbackAfterCommit(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx, "a.csv")
	require.NoError(t, err)
	require.NoError(t, sess.Stage(ctx, testRecords(7)))
	_, err = sess.Merge(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))
	require.NoError(t, sess.Rollback(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestSQLiteStageChunking(t *testing.T) {
	s := openTestSQLite(t)

	// More records than one INSERT statement carries.
	recs := make([]source.Record, stageChunk+37)
	for i := range recs {
		recs[i].Key[0] = byte(i)
		recs[i].Key[1] = byte(i >> 8)
		recs[i].Value = "+15550000000"
	}
	require.Equal(t, int64(len(recs)), loadTask(t, s, "big.csv", recs))
}

func TestSQLiteClear(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	loadTask(t, s, "a.csv", testRecords(1, 2))
	require.NoError(t, s.Clear(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestSQLiteOptimize(t *testing.T) {
	s := openTestSQLite(t)
	loadTask(t, s, "a.csv", testRecords(1))
	require.NoError(t, s.Optimize(context.Background()))
}
