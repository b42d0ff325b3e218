package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerCounts(t *testing.T) {
	tracker := NewTracker()
	tracker.SetTotal(5)

	tracker.AddSuccess(100, 90)
	tracker.AddSuccess(200, 200)
	tracker.AddFailed()

	status := tracker.GetStatus()
	require.Equal(t, int64(5), status.TotalTasks)
	require.Equal(t, int64(3), status.ProcessedTasks)
	require.Equal(t, int64(2), status.SucceededTasks)
	require.Equal(t, int64(1), status.FailedTasks)
	require.Equal(t, int64(300), status.RowsRead)
	require.Equal(t, int64(290), status.RowsInserted)
}

func TestTrackerProgressPercent(t *testing.T) {
	tracker := NewTracker()
	require.Equal(t, float64(0), tracker.GetProgressPercent())

	tracker.SetTotal(4)
	tracker.AddSuccess(10, 10)
	require.InDelta(t, 25.0, tracker.GetProgressPercent(), 0.001)

	tracker.AddSuccess(10, 10)
	tracker.AddFailed()
	tracker.AddSuccess(10, 10)
	require.InDelta(t, 100.0, tracker.GetProgressPercent(), 0.001)
}

func TestTrackerETA(t *testing.T) {
	tracker := NewTracker()
	tracker.SetTotal(10)

	// No tasks processed yet: the ETA is unknown.
	require.Equal(t, time.Duration(0), tracker.GetStatus().ETA)

	tracker.AddSuccess(100, 100)
	require.Greater(t, tracker.GetStatus().ETA, time.Duration(0))

	// All done: nothing remains.
	for i := 0; i < 9; i++ {
		tracker.AddSuccess(100, 100)
	}
	require.Equal(t, time.Duration(0), tracker.GetStatus().ETA)
}

func TestFormatRows(t *testing.T) {
	require.Equal(t, "999", FormatRows(999))
	require.Equal(t, "1.5K", FormatRows(1500))
	require.Equal(t, "2.5M", FormatRows(2_500_000))
	require.Equal(t, "1.20B", FormatRows(1_200_000_000))
}

func TestFormatSpeed(t *testing.T) {
	require.Equal(t, "1.2K rows/s", FormatSpeed(1234.5))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "estimating...", FormatDuration(0))
	require.Equal(t, "45s", FormatDuration(45*time.Second))
	require.Equal(t, "2m3s", FormatDuration(2*time.Minute+3*time.Second))
	require.Equal(t, "1h2m3s", FormatDuration(time.Hour+2*time.Minute+3*time.Second))
}
