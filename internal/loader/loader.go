// Package loader moves one task's records from the source into the store
// with exactly-once effect: re-running a task is safe because the merge
// skips keys that already exist.
package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TomerMadmon/md5-cracker/internal/source"
	"github.com/TomerMadmon/md5-cracker/internal/store"
)

// Outcome reports what one load attempt did. RowsInserted <= RowsRead;
// equality holds only when no key collided with a pre-existing row.
type Outcome struct {
	RowsRead     int64
	RowsInserted int64
}

// Loader stages a task's batches and merges them in a single transaction.
type Loader struct {
	source    source.Source
	backend   store.Backend
	batchSize int
	logger    *zap.Logger
}

// New creates a loader. Batches of batchSize records bound memory and
// per-statement cost.
func New(src source.Source, backend store.Backend, batchSize int, logger *zap.Logger) *Loader {
	return &Loader{
		source:    src,
		backend:   backend,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Load runs the full staging-and-merge sequence for one task. On any failure
// the transaction is abandoned whole; no partial merge survives. The
// checkpoint is never touched here.
func (l *Loader) Load(ctx context.Context, task source.Task) (Outcome, error) {
	sess, err := l.backend.Begin(ctx, task.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("task %s: %w", task.ID, err)
	}
	// Rollback after Commit is a no-op; the detached context lets the
	// abandon path run even when the run is being cancelled.
	defer sess.Rollback(context.WithoutCancel(ctx))

	if err := sess.ClearStaging(ctx); err != nil {
		return Outcome{}, fmt.Errorf("task %s: %w", task.ID, err)
	}

	var rowsRead int64
	err = l.source.ReadBatches(ctx, task, l.batchSize, func(batch []source.Record) error {
		if err := sess.Stage(ctx, batch); err != nil {
			return err
		}
		rowsRead += int64(len(batch))
		l.logger.Debug("Staged batch",
			zap.String("task", task.ID),
			zap.Int("batch_size", len(batch)),
			zap.Int64("rows_read", rowsRead),
		)
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("task %s: %w", task.ID, err)
	}

	inserted, err := sess.Merge(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("task %s: %w", task.ID, err)
	}

	if err := sess.ClearStaging(ctx); err != nil {
		return Outcome{}, fmt.Errorf("task %s: %w", task.ID, err)
	}

	if err := sess.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("task %s: %w", task.ID, err)
	}

	return Outcome{RowsRead: rowsRead, RowsInserted: inserted}, nil
}
