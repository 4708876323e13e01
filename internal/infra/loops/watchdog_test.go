package loops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// readyRow seeds a ready row with an address and no reported worker model.
func readyRow(t *testing.T, env *loopEnv, providerInstanceID, ip string) *domain.Instance {
	t.Helper()
	inst := bootRow(t, env, providerInstanceID)
	applied, err := env.store.BootingToReady(context.Background(), inst.ID, ip)
	require.NoError(t, err)
	require.True(t, applied)
	return inst
}

func TestWatchdog_MarksProviderDeletedWhenVMGone(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		existsFn: func(string) (bool, error) { return false, nil },
	})

	inst := readyRow(t, env, "vm-1", "10.9.0.1")
	require.NoError(t, env.watchdog.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, got.Status)
	require.True(t, got.DeletedByProvider)
	require.NotEmpty(t, got.DeletionReason)
	require.NotNil(t, got.TerminatedAt)
}

func TestWatchdog_BackfillsMissingWorkerModel(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		existsFn: func(string) (bool, error) { return true, nil },
	})
	env.probe.modelsFn = func(ip string) ([]string, error) {
		require.Equal(t, "10.9.0.2", ip)
		return []string{"mistral-7b-instruct"}, nil
	}

	inst := readyRow(t, env, "vm-2", "10.9.0.2")
	require.NoError(t, env.watchdog.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, got.Status)
	require.Equal(t, "mistral-7b-instruct", got.WorkerModelID)
	require.NotNil(t, got.WorkerLastHeartbeat)
}

func TestWatchdog_LeavesReportedModelAlone(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		existsFn: func(string) (bool, error) { return true, nil },
	})
	probed := false
	env.probe.modelsFn = func(string) ([]string, error) {
		probed = true
		return []string{"other-model"}, nil
	}

	inst := readyRow(t, env, "vm-3", "10.9.0.3")
	require.NoError(t, env.store.SetWorkerTelemetry(ctx, inst.ID, "llama-3-8b", domain.WorkerStatusReady, nil))

	require.NoError(t, env.watchdog.Tick(ctx))

	require.False(t, probed)
	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, "llama-3-8b", got.WorkerModelID)
}
