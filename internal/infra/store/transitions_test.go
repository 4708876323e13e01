package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func TestStore_ProvisioningToBooting_AssignsProviderInstanceOnce(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)

	applied, err := s.ProvisioningToBooting(ctx, inst.ID, "vm-1")
	require.NoError(t, err)
	require.True(t, applied)

	// A second assignment must lose, whatever id it carries.
	applied, err = s.ProvisioningToBooting(ctx, inst.ID, "vm-2")
	require.NoError(t, err)
	require.False(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBooting, got.Status)
	require.Equal(t, "vm-1", got.ProviderInstanceID)

	_, err = s.ProvisioningToBooting(ctx, inst.ID, "")
	require.Error(t, err)
}

func TestStore_BootToTerminated_FullPath(t *testing.T) {
	s, clk := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)
	toBooting(t, s, inst.ID, "vm-1")

	applied, err := s.BootingToInstalling(ctx, inst.ID)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.InstallingToStarting(ctx, inst.ID)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.BootingToReady(ctx, inst.ID, "10.0.0.9")
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, got.Status)
	require.Equal(t, "10.0.0.9", got.IPAddress)
	require.NotNil(t, got.ReadyAt)
	require.Zero(t, got.HealthCheckFailures)

	applied, err = s.RequestTermination(ctx, inst.ID, "scale down")
	require.NoError(t, err)
	require.True(t, applied)

	got, err = s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminating, got.Status)
	require.Equal(t, "scale down", got.DeletionReason)
	require.Nil(t, got.TerminatedAt)

	clk.Advance(5 * time.Second)
	applied, err = s.TerminatingToTerminated(ctx, inst.ID)
	require.NoError(t, err)
	require.True(t, applied)

	got, err = s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, got.Status)
	require.NotNil(t, got.TerminatedAt)

	history, err := s.History(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	wantPath := []domain.InstanceStatus{
		domain.StatusBooting,
		domain.StatusInstalling,
		domain.StatusStarting,
		domain.StatusReady,
		domain.StatusTerminating,
		domain.StatusTerminated,
	}
	for i, row := range history {
		require.Equal(t, wantPath[i], row.ToStatus)
	}
	require.Equal(t, domain.StatusProvisioning, history[0].FromStatus)
}

func TestStore_BootingToReady_SkipsIntermediatePhases(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)
	toBooting(t, s, inst.ID, "vm-1")

	// A worker whose first reachable probe already reports healthy goes
	// straight from booting to ready.
	applied, err := s.BootingToReady(ctx, inst.ID, "10.0.0.3")
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, got.Status)
}

func TestStore_InstallingToStarting_RecoversMissedInstallingReport(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)
	toBooting(t, s, inst.ID, "vm-1")

	applied, err := s.InstallingToStarting(ctx, inst.ID)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStarting, got.Status)
}

func TestStore_BootingToStartupFailed_TerminalAndIdempotent(t *testing.T) {
	s, clk := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)
	toBooting(t, s, inst.ID, "vm-1")

	applied, err := s.BootingToStartupFailed(ctx, inst.ID, string(domain.CodeStuckState), "health checks exhausted")
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStartupFailed, got.Status)
	require.Equal(t, string(domain.CodeStuckState), got.ErrorCode)
	require.NotNil(t, got.FailedAt)
	firstFailedAt := *got.FailedAt

	clk.Advance(time.Minute)
	applied, err = s.BootingToStartupFailed(ctx, inst.ID, string(domain.CodeStuckState), "again")
	require.NoError(t, err)
	require.False(t, applied)

	got, err = s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.True(t, got.FailedAt.Equal(firstFailedAt))

	history, err := s.History(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// A dead boot cannot come back.
	applied, err = s.BootingToReady(ctx, inst.ID, "10.0.0.4")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestStore_RequestTermination_WithoutProviderInstanceIsDirect(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)

	applied, err := s.RequestTermination(ctx, inst.ID, "never provisioned")
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, got.Status)
	require.Equal(t, "never provisioned", got.DeletionReason)
	require.NotNil(t, got.TerminatedAt)

	// Terminal rows ignore repeated termination requests.
	applied, err = s.RequestTermination(ctx, inst.ID, "again")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestStore_MarkProviderDeleted(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)
	toBooting(t, s, inst.ID, "vm-1")
	applied, err := s.BootingToReady(ctx, inst.ID, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.MarkProviderDeleted(ctx, inst.ID, "instance missing at provider")
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, got.Status)
	require.True(t, got.DeletedByProvider)
	require.Equal(t, "instance missing at provider", got.DeletionReason)

	// Only ready rows qualify; a terminated one no-ops.
	applied, err = s.MarkProviderDeleted(ctx, inst.ID, "again")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestStore_UpdateBootingHealthFailures_GuardedByBootPhase(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)
	toBooting(t, s, inst.ID, "vm-1")

	applied, err := s.UpdateBootingHealthFailures(ctx, inst.ID, 3)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.HealthCheckFailures)
	require.NotNil(t, got.LastHealthCheck)

	// Counter writes never touch history.
	history, err := s.History(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	okApplied, err := s.BootingToReady(ctx, inst.ID, "10.0.0.6")
	require.NoError(t, err)
	require.True(t, okApplied)

	applied, err = s.UpdateBootingHealthFailures(ctx, inst.ID, 4)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestStore_ApplyTransition_RaceLoserNoops(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)
	toBooting(t, s, inst.ID, "vm-1")

	stale, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)

	// Another writer moves the row while we hold a stale snapshot.
	applied, err := s.BootingToInstalling(ctx, inst.ID)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.applyTransition(ctx, OpBootingToReady, stale, domain.StatusReady, "late probe", nil)
	require.NoError(t, err)
	require.False(t, applied)

	got, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInstalling, got.Status)
}
