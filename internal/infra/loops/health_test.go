package loops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// bootRow seeds a row already in booting with the given provider instance.
func bootRow(t *testing.T, env *loopEnv, providerInstanceID string) *domain.Instance {
	t.Helper()
	inst := env.seedRow(t)
	applied, err := env.store.ProvisioningToBooting(context.Background(), inst.ID, providerInstanceID)
	require.NoError(t, err)
	require.True(t, applied)
	inst.ProviderInstanceID = providerInstanceID
	return inst
}

func TestHealthChecker_FetchesAddressThenPromotesReady(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		ipFn: func(string) (string, error) { return "10.7.0.3", nil },
	})
	queue := 2
	env.probe.healthFn = func(ip string) (domain.WorkerHealth, error) {
		require.Equal(t, "10.7.0.3", ip)
		return domain.WorkerHealth{Status: domain.WorkerStatusReady, ModelID: "llama-3-8b", QueueDepth: &queue}, nil
	}

	inst := bootRow(t, env, "vm-1")
	require.NoError(t, env.health.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, got.Status)
	require.Equal(t, "10.7.0.3", got.IPAddress)
	require.Equal(t, "llama-3-8b", got.WorkerModelID)
	require.NotNil(t, got.WorkerQueueDepth)
	require.Equal(t, 2, *got.WorkerQueueDepth)
	require.NotNil(t, got.LastHealthCheck)
}

func TestHealthChecker_WalksReportedBootPhases(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		ipFn: func(string) (string, error) { return "10.7.0.4", nil },
	})
	inst := bootRow(t, env, "vm-2")

	env.probe.healthFn = func(string) (domain.WorkerHealth, error) {
		return domain.WorkerHealth{Status: "initializing", Phase: workerPhaseInstalling}, nil
	}
	require.NoError(t, env.health.Tick(ctx))
	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInstalling, got.Status)

	env.probe.healthFn = func(string) (domain.WorkerHealth, error) {
		return domain.WorkerHealth{Status: "initializing", Phase: workerPhaseStarting}, nil
	}
	env.clock.Advance(11 * time.Second)
	require.NoError(t, env.health.Tick(ctx))
	got, err = env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStarting, got.Status)

	env.probe.healthFn = func(string) (domain.WorkerHealth, error) {
		return domain.WorkerHealth{Status: domain.WorkerStatusReady}, nil
	}
	env.clock.Advance(11 * time.Second)
	require.NoError(t, env.health.Tick(ctx))
	got, err = env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, got.Status)
}

func TestHealthChecker_DeclaresStartupFailedPastThreshold(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		ipFn: func(string) (string, error) { return "10.7.0.5", nil },
	})
	env.probe.healthFn = func(string) (domain.WorkerHealth, error) {
		return domain.WorkerHealth{}, errors.New("connection refused")
	}
	env.health.tunables = func() domain.Tunables {
		tun := domain.DefaultTunables()
		tun.HealthFailureThreshold = 2
		return tun
	}

	inst := bootRow(t, env, "vm-3")

	require.NoError(t, env.health.Tick(ctx))
	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBooting, got.Status)
	require.Equal(t, 1, got.HealthCheckFailures)

	env.clock.Advance(11 * time.Second)
	require.NoError(t, env.health.Tick(ctx))
	got, err = env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStartupFailed, got.Status)
	require.Equal(t, "HEALTH_CHECK_FAILED", got.ErrorCode)
	require.NotNil(t, got.FailedAt)
}

func TestHealthChecker_ContactResetsFailureCounter(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		ipFn: func(string) (string, error) { return "10.7.0.6", nil },
	})
	inst := bootRow(t, env, "vm-4")

	env.probe.healthFn = func(string) (domain.WorkerHealth, error) {
		return domain.WorkerHealth{}, errors.New("connection refused")
	}
	require.NoError(t, env.health.Tick(ctx))

	// The worker comes up, still loading. Contact alone clears the count.
	env.probe.healthFn = func(string) (domain.WorkerHealth, error) {
		return domain.WorkerHealth{Status: "initializing"}, nil
	}
	env.clock.Advance(11 * time.Second)
	require.NoError(t, env.health.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBooting, got.Status)
	require.Equal(t, 0, got.HealthCheckFailures)
}

func TestHealthChecker_NoAddressYetCountsAsFailure(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{}) // ipFn nil: provider reports no address
	inst := bootRow(t, env, "vm-5")

	require.NoError(t, env.health.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBooting, got.Status)
	require.Empty(t, got.IPAddress)
	require.Equal(t, 1, got.HealthCheckFailures)
}
