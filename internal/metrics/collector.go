package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TomerMadmon/md5-cracker/internal/progress"
)

// Collector collects and exposes load metrics.
type Collector struct {
	tasksTotal        *prometheus.CounterVec
	rowsReadTotal     prometheus.Counter
	rowsInsertedTotal prometheus.Counter
	retriesTotal      prometheus.Counter
	taskDuration      prometheus.Histogram
	progressTracker   *progress.Tracker
}

// New creates a collector and registers its metrics.
func New() *Collector {
	c := &Collector{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "load_tasks_total",
				Help: "Total number of tasks processed",
			},
			[]string{"status"},
		),
		rowsReadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "load_rows_read_total",
				Help: "Total rows read from input partitions",
			},
		),
		rowsInsertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "load_rows_inserted_total",
				Help: "Total rows inserted into the store (dedup conflicts excluded)",
			},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "load_retries_total",
				Help: "Total retry attempts beyond the first per task",
			},
		),
		taskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "load_task_duration_seconds",
				Help:    "Time taken to load one partition",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	prometheus.MustRegister(c.tasksTotal)
	prometheus.MustRegister(c.rowsReadTotal)
	prometheus.MustRegister(c.rowsInsertedTotal)
	prometheus.MustRegister(c.retriesTotal)
	prometheus.MustRegister(c.taskDuration)

	return c
}

// IncSuccess records a completed task with its row counts.
func (c *Collector) IncSuccess(rowsRead, rowsInserted int64) {
	c.tasksTotal.WithLabelValues("success").Inc()
	c.rowsReadTotal.Add(float64(rowsRead))
	c.rowsInsertedTotal.Add(float64(rowsInserted))
	c.progressTracker.AddSuccess(rowsRead, rowsInserted)
}

// IncFailed records a failed task.
func (c *Collector) IncFailed() {
	c.tasksTotal.WithLabelValues("failed").Inc()
	c.progressTracker.AddFailed()
}

// AddRetries records attempts made beyond the first.
func (c *Collector) AddRetries(n int) {
	if n > 0 {
		c.retriesTotal.Add(float64(n))
	}
}

// ObserveDuration observes one task's load duration.
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.taskDuration.Observe(duration.Seconds())
}

// StartServer starts the metrics HTTP server.
func (c *Collector) StartServer(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}

// GetProgressTracker returns the progress tracker fed by this collector.
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// SetTotalTasks sets the residual task count for progress tracking.
func (c *Collector) SetTotalTasks(tasks int64) {
	c.progressTracker.SetTotal(tasks)
}
