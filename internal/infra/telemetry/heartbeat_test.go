package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTracker_ReportReflectsBeatAge(t *testing.T) {
	tracker := NewHealthTracker()
	clock := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tracker.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	beat := tracker.Register("provisioner", 30*time.Second)

	report := tracker.Report()
	require.Equal(t, "ok", report.Status)
	require.Len(t, report.Components, 1)
	assert.True(t, report.Components[0].Healthy)

	mu.Lock()
	clock = clock.Add(time.Minute)
	mu.Unlock()
	report = tracker.Report()
	assert.Equal(t, "degraded", report.Status)
	assert.False(t, report.Components[0].Healthy)

	beat.Beat()
	report = tracker.Report()
	assert.Equal(t, "ok", report.Status)
}

func TestHealthTracker_StoppedComponentIsExcluded(t *testing.T) {
	tracker := NewHealthTracker()
	beat := tracker.Register("terminator", time.Nanosecond)
	time.Sleep(time.Millisecond)

	report := tracker.Report()
	require.Equal(t, "degraded", report.Status)

	beat.Stop()
	report = tracker.Report()
	assert.Equal(t, "ok", report.Status)
	assert.Empty(t, report.Components)
}

func TestHeartbeat_NilReceiverIsSafe(t *testing.T) {
	var beat *Heartbeat
	assert.NotPanics(t, func() {
		beat.Beat()
		beat.Stop()
	})
}
