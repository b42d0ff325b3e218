package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TomerMadmon/md5-cracker/internal/checkpoint"
	"github.com/TomerMadmon/md5-cracker/internal/config"
	"github.com/TomerMadmon/md5-cracker/internal/loader"
	"github.com/TomerMadmon/md5-cracker/internal/metrics"
	"github.com/TomerMadmon/md5-cracker/internal/progress"
	"github.com/TomerMadmon/md5-cracker/internal/scheduler"
	"github.com/TomerMadmon/md5-cracker/internal/source"
	"github.com/TomerMadmon/md5-cracker/internal/store"
)

// Importer wires the source, store, checkpoint and scheduler into one run.
type Importer struct {
	cfg     *config.Config
	logger  *zap.Logger
	src     source.Source
	backend store.Backend
	ckpt    *checkpoint.Store
	metrics *metrics.Collector
}

// New creates an importer instance.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Importer, error) {
	var src source.Source
	switch cfg.Input.Source {
	case "s3":
		s3src, err := source.NewS3Source(source.S3Config{
			Endpoint:  cfg.Input.S3.Endpoint,
			AccessKey: cfg.Input.S3.AccessKey,
			SecretKey: cfg.Input.S3.SecretKey,
			Secure:    cfg.Input.S3.Secure,
			Bucket:    cfg.Input.S3.Bucket,
			Prefix:    cfg.Input.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 source: %w", err)
		}
		src = s3src
	default:
		src = source.NewFileSource(cfg.Input.Dir)
	}

	backend, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &Importer{
		cfg:     cfg,
		logger:  logger,
		src:     src,
		backend: backend,
		ckpt:    checkpoint.NewStore(cfg.Pipeline.Checkpoint),
		metrics: metrics.New(),
	}, nil
}

// Run executes the load. The exit is successful only if the residual task
// set was reduced to empty with zero failures.
func (m *Importer) Run(ctx context.Context) error {
	m.logger.Info("Starting load",
		zap.String("source", m.cfg.Input.Source),
		zap.String("backend", m.cfg.Store.Backend),
		zap.Int("concurrency", m.cfg.Pipeline.Concurrency),
		zap.Int("batch_size", m.cfg.Pipeline.BatchSize),
		zap.Bool("dry_run", m.cfg.Pipeline.DryRun),
	)

	if m.cfg.Pipeline.MetricsAddr != "" {
		go func() {
			if err := m.metrics.StartServer(m.cfg.Pipeline.MetricsAddr); err != nil {
				m.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	if m.cfg.Pipeline.ClearStore {
		m.logger.Info("Clearing store before load")
		if err := m.backend.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
		// A cleared store invalidates any previous progress.
		if err := m.ckpt.Reset(); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
	} else if m.cfg.Pipeline.ResetState {
		if err := m.ckpt.Reset(); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
	}

	// A populated store without a checkpoint means this output location was
	// loaded by something we have no record of. Refuse rather than guess;
	// with a checkpoint present the store is assumed consistent and we
	// resume.
	count, err := m.backend.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe store: %w", err)
	}
	if count > 0 && !m.ckpt.Exists() {
		return fmt.Errorf("store already holds %d rows but no checkpoint exists; pass --clear-store to reload from scratch", count)
	}

	state, err := m.ckpt.Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	tasks, err := m.src.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no partition files found")
	}

	residual := state.Residual(tasks)
	m.logger.Info("Computed residual task set",
		zap.Int("total_tasks", len(tasks)),
		zap.Int("completed", len(tasks)-len(residual)),
		zap.Int("residual", len(residual)),
	)

	if len(residual) == 0 {
		m.logger.Info("Nothing to do, all partitions already loaded")
		return nil
	}

	if m.cfg.Pipeline.DryRun {
		for _, task := range residual {
			m.logger.Info("Would load partition", zap.String("task", task.ID))
		}
		return nil
	}

	m.metrics.SetTotalTasks(int64(len(residual)))

	var display *progress.Display
	if m.cfg.Pipeline.ShowProgress && progress.IsTerminalSupported() {
		display = progress.NewDisplay(m.metrics.GetProgressTracker(), 2*time.Second)
		display.Start()
	}

	ld := loader.New(m.src, m.backend, m.cfg.Pipeline.BatchSize, m.logger)
	sched := scheduler.New(scheduler.Config{
		Concurrency: m.cfg.Pipeline.Concurrency,
		MaxAttempts: m.cfg.Pipeline.Retries,
		BackoffBase: time.Duration(m.cfg.Pipeline.RetryBackoffMs) * time.Millisecond,
		FlushEvery:  m.cfg.Pipeline.FlushEvery,
	}, ld, m.ckpt, state, metricsReporter{m.metrics}, m.logger)

	summary, err := sched.Run(ctx, residual)

	if display != nil {
		display.Stop()
	}

	if err != nil {
		return fmt.Errorf("load run failed: %w", err)
	}

	m.logger.Info("Load finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int64("rows_read", summary.RowsRead),
		zap.Int64("rows_inserted", summary.RowsInserted),
	)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d tasks failed (%v); re-running the same command retries only the failed and pending partitions",
			summary.Failed, len(residual), summary.FailedTaskIDs)
	}

	if remaining := len(residual) - summary.Succeeded; remaining > 0 {
		return fmt.Errorf("interrupted with %d partitions still pending; re-run to resume from the checkpoint", remaining)
	}

	if err := m.backend.Optimize(ctx); err != nil {
		m.logger.Warn("Failed to refresh store statistics", zap.Error(err))
	}

	return nil
}

// Close cleans up resources.
func (m *Importer) Close() error {
	if m.backend != nil {
		return m.backend.Close()
	}
	return nil
}

// metricsReporter feeds scheduler outcomes into the metrics collector and,
// through it, the progress tracker.
type metricsReporter struct {
	c *metrics.Collector
}

func (r metricsReporter) TaskDone(res scheduler.Result) {
	if res.Err == nil {
		r.c.IncSuccess(res.Outcome.RowsRead, res.Outcome.RowsInserted)
	} else {
		r.c.IncFailed()
	}
	r.c.AddRetries(res.Attempts - 1)
	r.c.ObserveDuration(res.Duration)
}
