package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Display periodically prints the tracker's status to the console.
type Display struct {
	tracker  *Tracker
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDisplay creates a display that refreshes at the given interval.
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the display loop.
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop ends the loop and prints the final summary.
func (d *Display) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.updateDisplay()
		case <-d.stopCh:
			d.finalDisplay()
			return
		}
	}
}

func (d *Display) updateDisplay() {
	status := d.tracker.GetStatus()
	percent := d.tracker.GetProgressPercent()
	elapsed := time.Since(status.StartTime)

	fmt.Printf("[%d/%d] %s | %s rows | %s | elapsed %s | remaining %s\n",
		status.ProcessedTasks, status.TotalTasks,
		generateProgressBar(percent, 30),
		FormatRows(status.RowsRead),
		FormatSpeed(status.CurrentSpeed),
		FormatDuration(elapsed),
		FormatDuration(status.ETA),
	)
}

func (d *Display) finalDisplay() {
	status := d.tracker.GetStatus()
	elapsed := time.Since(status.StartTime)

	lines := []string{
		"",
		strings.Repeat("=", 50),
		fmt.Sprintf("Tasks processed: %d/%d", status.ProcessedTasks, status.TotalTasks),
		fmt.Sprintf("  succeeded: %d", status.SucceededTasks),
		fmt.Sprintf("  failed:    %d", status.FailedTasks),
		fmt.Sprintf("Rows read:     %s", FormatRows(status.RowsRead)),
		fmt.Sprintf("Rows inserted: %s", FormatRows(status.RowsInserted)),
		fmt.Sprintf("Total time:    %s", FormatDuration(elapsed)),
		fmt.Sprintf("Average speed: %s", FormatSpeed(status.AverageSpeed)),
		strings.Repeat("=", 50),
		"",
	}
	fmt.Println(strings.Join(lines, "\n"))
}

func generateProgressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %.1f%%", bar, percent)
}

// IsTerminalSupported reports whether stdout is a terminal.
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
