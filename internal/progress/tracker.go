package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is a snapshot of the current load run.
type Status struct {
	TotalTasks     int64
	ProcessedTasks int64
	SucceededTasks int64
	FailedTasks    int64
	RowsRead       int64
	RowsInserted   int64
	StartTime      time.Time
	LastUpdateTime time.Time
	CurrentSpeed   float64 // rows/second over the recent window
	AverageSpeed   float64 // rows/second since start
	ETA            time.Duration
}

// Tracker aggregates task outcomes into throughput and ETA statistics. It is
// purely derived state and has no authority over the checkpoint.
type Tracker struct {
	mu           sync.RWMutex
	status       Status
	speedSamples []speedSample
	maxSamples   int
}

type speedSample struct {
	timestamp time.Time
	rows      int64
}

// NewTracker creates a tracker starting now.
func NewTracker() *Tracker {
	return &Tracker{
		status: Status{
			StartTime:      time.Now(),
			LastUpdateTime: time.Now(),
		},
		speedSamples: make([]speedSample, 0, 60),
		maxSamples:   60,
	}
}

// SetTotal sets the number of tasks in the residual set.
func (t *Tracker) SetTotal(tasks int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalTasks = tasks
}

// AddSuccess records a completed task and its row counts.
func (t *Tracker) AddSuccess(rowsRead, rowsInserted int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SucceededTasks++
	t.status.ProcessedTasks++
	t.status.RowsRead += rowsRead
	t.status.RowsInserted += rowsInserted
	t.updateSpeed(rowsRead)
}

// AddFailed records a failed task.
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedTasks++
	t.status.ProcessedTasks++
	t.status.LastUpdateTime = time.Now()
}

// updateSpeed refreshes throughput and ETA. Caller holds the lock.
func (t *Tracker) updateSpeed(rows int64) {
	now := time.Now()

	t.speedSamples = append(t.speedSamples, speedSample{timestamp: now, rows: rows})
	if len(t.speedSamples) > t.maxSamples {
		t.speedSamples = t.speedSamples[1:]
	}

	t.calculateCurrentSpeed(now)
	t.calculateAverageSpeed(now)
	t.calculateETA(now)

	t.status.LastUpdateTime = now
}

// calculateCurrentSpeed uses the samples from the last 10 seconds.
func (t *Tracker) calculateCurrentSpeed(now time.Time) {
	if len(t.speedSamples) < 2 {
		t.status.CurrentSpeed = 0
		return
	}

	cutoff := now.Add(-10 * time.Second)
	var recentRows int64
	var firstSample *speedSample

	for i := len(t.speedSamples) - 1; i >= 0; i-- {
		sample := &t.speedSamples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		recentRows += sample.rows
		firstSample = sample
	}

	if firstSample != nil {
		window := now.Sub(firstSample.timestamp)
		if window > 0 {
			t.status.CurrentSpeed = float64(recentRows) / window.Seconds()
		}
	}
}

func (t *Tracker) calculateAverageSpeed(now time.Time) {
	elapsed := now.Sub(t.status.StartTime)
	if elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.RowsRead) / elapsed.Seconds()
	}
}

// calculateETA extrapolates from the average per-task rate; row totals are
// unknown up front, task counts are not.
func (t *Tracker) calculateETA(now time.Time) {
	if t.status.TotalTasks == 0 || t.status.ProcessedTasks == 0 {
		t.status.ETA = 0
		return
	}

	remaining := t.status.TotalTasks - t.status.ProcessedTasks
	if remaining <= 0 {
		t.status.ETA = 0
		return
	}

	elapsed := now.Sub(t.status.StartTime)
	perTask := elapsed / time.Duration(t.status.ProcessedTasks)
	t.status.ETA = perTask * time.Duration(remaining)
}

// GetStatus returns the current status snapshot.
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns the task progress percentage.
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalTasks == 0 {
		return 0
	}
	return float64(t.status.ProcessedTasks) / float64(t.status.TotalTasks) * 100
}

// FormatRows formats a row count in human readable form.
func FormatRows(rows int64) string {
	switch {
	case rows < 1_000:
		return fmt.Sprintf("%d", rows)
	case rows < 1_000_000:
		return fmt.Sprintf("%.1fK", float64(rows)/1_000)
	case rows < 1_000_000_000:
		return fmt.Sprintf("%.1fM", float64(rows)/1_000_000)
	default:
		return fmt.Sprintf("%.2fB", float64(rows)/1_000_000_000)
	}
}

// FormatSpeed formats a throughput in rows per second.
func FormatSpeed(rowsPerSecond float64) string {
	return FormatRows(int64(rowsPerSecond)) + " rows/s"
}

// FormatDuration formats a duration as 1h2m3s / 2m3s / 3s.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "estimating..."
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
