// Package scheduler dispatches the residual task set across a bounded worker
// pool and funnels every outcome through one channel, so checkpoint state has
// a single writer and needs no locking.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TomerMadmon/md5-cracker/internal/checkpoint"
	"github.com/TomerMadmon/md5-cracker/internal/errkind"
	"github.com/TomerMadmon/md5-cracker/internal/loader"
	"github.com/TomerMadmon/md5-cracker/internal/source"
)

// TaskLoader is the per-task load operation the pool executes.
type TaskLoader interface {
	Load(ctx context.Context, task source.Task) (loader.Outcome, error)
}

// Config tunes the pool and the retry controller wrapped around each load.
type Config struct {
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	// FlushEvery persists the checkpoint after this many task completions.
	// It is always flushed once more at the end of the run.
	FlushEvery int
}

// Result is one task's terminal outcome within this run.
type Result struct {
	Task     source.Task
	Outcome  loader.Outcome
	Attempts int
	Duration time.Duration
	Err      error
	ErrKind  errkind.Kind
}

// Summary aggregates a run.
type Summary struct {
	Succeeded     int
	Failed        int
	FailedTaskIDs []string
	RowsRead      int64
	RowsInserted  int64
}

// Reporter consumes outcome events. It is called from the scheduler's
// consumer goroutine only, never concurrently.
type Reporter interface {
	TaskDone(res Result)
}

// Scheduler owns the checkpoint state for the duration of a run.
type Scheduler struct {
	cfg      Config
	loader   TaskLoader
	ckpt     *checkpoint.Store
	state    *checkpoint.State
	reporter Reporter
	logger   *zap.Logger
}

// New creates a scheduler. reporter may be nil.
func New(cfg Config, tl TaskLoader, ckpt *checkpoint.Store, state *checkpoint.State, reporter Reporter, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = loader.DefaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = loader.DefaultBackoffBase
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = 5
	}
	return &Scheduler{
		cfg:      cfg,
		loader:   tl,
		ckpt:     ckpt,
		state:    state,
		reporter: reporter,
		logger:   logger,
	}
}

// Run executes the tasks with bounded concurrency. Cancelling ctx stops
// dispatch, waits for in-flight tasks to reach a terminal state, and still
// performs the final checkpoint flush. Interrupted tasks are not credited;
// they stay pending for the next run.
func (s *Scheduler) Run(ctx context.Context, tasks []source.Task) (Summary, error) {
	taskCh := make(chan source.Task)
	resultCh := make(chan Result, s.cfg.Concurrency)

	var group errgroup.Group
	for i := 0; i < s.cfg.Concurrency; i++ {
		workerID := i
		group.Go(func() error {
			s.worker(ctx, workerID, taskCh, resultCh)
			return nil
		})
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		group.Wait() //nolint:errcheck // workers never return errors
		close(resultCh)
	}()

	summary := s.consume(resultCh)

	if err := s.ckpt.Flush(s.state); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Scheduler) worker(ctx context.Context, id int, taskCh <-chan source.Task, resultCh chan<- Result) {
	logger := s.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	backoff := loader.Exponential(s.cfg.BackoffBase)

	for task := range taskCh {
		start := time.Now()

		var out loader.Outcome
		attempts, err := loader.Retry(ctx, s.cfg.MaxAttempts, backoff, func(ctx context.Context) error {
			o, loadErr := s.loader.Load(ctx, task)
			if loadErr == nil {
				out = o
			}
			return loadErr
		})

		res := Result{
			Task:     task,
			Outcome:  out,
			Attempts: attempts,
			Duration: time.Since(start),
			Err:      err,
		}
		if err != nil {
			res.ErrKind = errkind.KindOf(err)
		}
		resultCh <- res
	}

	logger.Debug("Worker finished")
}

// consume is the single writer of checkpoint state: it drains the completion
// channel, records outcomes, and flushes on the configured cadence.
func (s *Scheduler) consume(resultCh <-chan Result) Summary {
	var summary Summary
	completions := 0

	for res := range resultCh {
		if interrupted(res.Err) {
			// The merge never committed; the task stays pending for the
			// next run.
			s.logger.Debug("Task interrupted", zap.String("task", res.Task.ID))
			continue
		}

		if res.Err == nil {
			s.state.MarkCompleted(res.Task.ID)
			summary.Succeeded++
			summary.RowsRead += res.Outcome.RowsRead
			summary.RowsInserted += res.Outcome.RowsInserted
			s.logger.Info("Task completed",
				zap.String("task", res.Task.ID),
				zap.Int64("rows_read", res.Outcome.RowsRead),
				zap.Int64("rows_inserted", res.Outcome.RowsInserted),
				zap.Int("attempts", res.Attempts),
				zap.Duration("duration", res.Duration),
			)
		} else {
			s.state.MarkFailed(res.Task.ID)
			summary.Failed++
			summary.FailedTaskIDs = append(summary.FailedTaskIDs, res.Task.ID)
			s.logger.Error("Task failed",
				zap.String("task", res.Task.ID),
				zap.String("error_kind", string(res.ErrKind)),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err),
			)
		}

		if s.reporter != nil {
			s.reporter.TaskDone(res)
		}

		completions++
		if completions%s.cfg.FlushEvery == 0 {
			if err := s.ckpt.Flush(s.state); err != nil {
				s.logger.Error("Checkpoint flush failed", zap.Error(err))
			}
		}
	}

	sort.Strings(summary.FailedTaskIDs)
	return summary
}

// interrupted reports whether the error is a run cancellation rather than a
// task failure.
func interrupted(err error) bool {
	return err != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
