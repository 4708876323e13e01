package loops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func TestRecovery_ForcesAncientBootToStartupFailed(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	inst := bootRow(t, env, "vm-1")
	env.clock.Advance(2*time.Hour + time.Minute)

	require.NoError(t, env.recovery.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusStartupFailed, got.Status)
	require.Equal(t, string(domain.CodeStuckState), got.ErrorCode)
	require.NotNil(t, got.FailedAt)
}

func TestRecovery_LeavesYoungBootsAlone(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	inst := bootRow(t, env, "vm-2")
	env.clock.Advance(30 * time.Minute)

	require.NoError(t, env.recovery.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusBooting, got.Status)
}

func TestRecovery_RedrivesStalledTermination(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		existsFn: func(string) (bool, error) { return false, nil },
	})

	inst := terminatingRow(t, env, "vm-3")
	env.clock.Advance(2*time.Minute + time.Second)

	require.NoError(t, env.recovery.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, got.Status)
	require.NotNil(t, got.TerminatedAt)
}

func TestRecovery_DoesNotFightAFreshTerminatorLease(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	terminateCalls := 0
	env.useProvider(&stubProvider{
		existsFn:    func(string) (bool, error) { return true, nil },
		terminateFn: func(string) (bool, error) { terminateCalls++; return true, nil },
	})

	terminatingRow(t, env, "vm-4")

	// The terminator holds the lease; recovery must slide past the row.
	rows, err := env.store.ClaimTerminating(ctx, 10, domain.DefaultTerminatorLeaseSeconds*time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, env.recovery.Tick(ctx))
	require.Equal(t, 0, terminateCalls)
}
