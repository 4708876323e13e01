package loops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// terminatingRow seeds a row in terminating that still owns a provider VM.
func terminatingRow(t *testing.T, env *loopEnv, providerInstanceID string) *domain.Instance {
	t.Helper()
	inst := bootRow(t, env, providerInstanceID)
	applied, err := env.store.RequestTermination(context.Background(), inst.ID, "scale down")
	require.NoError(t, err)
	require.True(t, applied)
	return inst
}

func TestTerminator_ConfirmsDisappearanceBeforeClosingRow(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	gone := false
	var terminateCalls int
	env.useProvider(&stubProvider{
		existsFn:    func(string) (bool, error) { return !gone, nil },
		terminateFn: func(string) (bool, error) { terminateCalls++; return true, nil },
	})

	inst := terminatingRow(t, env, "vm-1")

	// VM still present: one terminate call, row stays terminating.
	require.NoError(t, env.terminator.Tick(ctx))
	require.Equal(t, 1, terminateCalls)
	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminating, got.Status)
	require.Nil(t, got.TerminatedAt)

	// VM gone: the row is closed out without another terminate call.
	gone = true
	env.clock.Advance(31 * time.Second)
	require.NoError(t, env.terminator.Tick(ctx))
	require.Equal(t, 1, terminateCalls)
	got, err = env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, got.Status)
	require.NotNil(t, got.TerminatedAt)
}

func TestTerminator_ProviderErrorClearsLease(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		existsFn: func(string) (bool, error) { return false, errors.New("gateway timeout") },
	})

	inst := terminatingRow(t, env, "vm-2")
	require.NoError(t, env.terminator.Tick(ctx))

	got, err := env.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminating, got.Status)
	require.Nil(t, got.LastReconciliation)

	// The cleared lease makes the row immediately reclaimable.
	rows, err := env.store.ClaimTerminating(ctx, 10, domain.DefaultTerminatorLeaseSeconds*time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, inst.ID, rows[0].ID)
}

func TestTerminator_TerminateErrorAudited(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.useProvider(&stubProvider{
		existsFn:    func(string) (bool, error) { return true, nil },
		terminateFn: func(string) (bool, error) { return false, domain.Transient("stub.TerminateInstance", errors.New("api down")) },
	})

	terminatingRow(t, env, "vm-3")
	require.NoError(t, env.terminator.Tick(ctx))

	err := env.audit.completionFor("instance_terminate")
	require.Error(t, err)
	require.Equal(t, domain.CodeProviderTransient, domain.CodeOf(err))
}
