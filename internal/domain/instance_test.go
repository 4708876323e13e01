package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstanceStatus_Predicates(t *testing.T) {
	require.True(t, StatusTerminated.Terminal())
	require.True(t, StatusStartupFailed.Terminal())
	require.False(t, StatusReady.Terminal())
	require.False(t, StatusTerminating.Terminal())

	for _, s := range BootPhaseStatuses {
		require.True(t, s.BootPhase(), "%s", s)
		require.True(t, s.Live(), "%s", s)
	}
	require.False(t, StatusProvisioning.BootPhase())
	require.False(t, StatusReady.BootPhase())

	require.True(t, StatusProvisioning.Live())
	require.True(t, StatusReady.Live())
	require.False(t, StatusTerminating.Live())
	require.False(t, StatusTerminated.Live())
	require.False(t, StatusStartupFailed.Live())
}

func TestInstance_FreshnessPicksNewestSignal(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	heartbeat := base.Add(-2 * time.Minute)
	health := base.Add(-30 * time.Second)
	lease := base.Add(-10 * time.Minute)

	inst := Instance{
		WorkerLastHeartbeat: &heartbeat,
		LastHealthCheck:     &health,
		LastReconciliation:  &lease,
	}
	require.Equal(t, health, inst.Freshness())

	inst.LastHealthCheck = nil
	require.Equal(t, heartbeat, inst.Freshness())

	require.True(t, Instance{}.Freshness().IsZero())
}
