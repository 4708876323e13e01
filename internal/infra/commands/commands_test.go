package commands

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
)

func TestDispatcher_ProvisionCreatesPendingRow(t *testing.T) {
	s := openStore(t)
	d := NewDispatcher(s, &fakeReconciler{}, DispatcherOptions{})
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, domain.Command{
		Type:           domain.CommandProvision,
		ProviderID:     "tensorrack",
		ZoneID:         "fr-par-2",
		InstanceTypeID: "gpu-l40s-1",
		ModelID:        "llama-3-8b",
	}))

	rows, err := s.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, domain.StatusProvisioning, rows[0].Status)
	require.Equal(t, "tensorrack", rows[0].ProviderID)
	require.Equal(t, "fr-par-2", rows[0].ZoneID)
	require.Equal(t, "gpu-l40s-1", rows[0].InstanceTypeID)
	require.Equal(t, "llama-3-8b", rows[0].ModelID)
}

func TestDispatcher_ProvisionRequiresPlacement(t *testing.T) {
	s := openStore(t)
	d := NewDispatcher(s, &fakeReconciler{}, DispatcherOptions{})
	ctx := context.Background()

	err := d.Dispatch(ctx, domain.Command{Type: domain.CommandProvision, ProviderID: "tensorrack"})
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))

	rows, err := s.ListInstances(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDispatcher_TerminateIsIdempotent(t *testing.T) {
	s := openStore(t)
	d := NewDispatcher(s, &fakeReconciler{}, DispatcherOptions{})
	ctx := context.Background()

	inst := &domain.Instance{
		ProviderID:     domain.MockProviderCode,
		ZoneID:         domain.MockZone,
		InstanceTypeID: domain.MockInstanceType,
	}
	require.NoError(t, s.CreateInstance(ctx, inst))

	cmd := domain.Command{Type: domain.CommandTerminate, InstanceID: inst.ID, Reason: "operator request"}
	require.NoError(t, d.Dispatch(ctx, cmd))

	// No provider instance was ever assigned, so the row closes directly.
	row, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, row.Status)
	require.Equal(t, "operator request", row.DeletionReason)

	// Replays settle as no-ops.
	require.NoError(t, d.Dispatch(ctx, cmd))
}

func TestDispatcher_ReconcileAndCatalogDelegate(t *testing.T) {
	s := openStore(t)
	recon := &fakeReconciler{}
	metrics := &fakeMetrics{commands: map[domain.CommandType]int{}}
	d := NewDispatcher(s, recon, DispatcherOptions{Metrics: metrics})
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, domain.Command{Type: domain.CommandReconcile}))
	require.Equal(t, 1, recon.reconciles)

	require.NoError(t, d.Dispatch(ctx, domain.Command{
		Type:       domain.CommandSyncCatalog,
		ProviderID: "tensorrack",
		ZoneID:     "fr-par-2",
	}))
	require.Equal(t, [][2]string{{"tensorrack", "fr-par-2"}}, recon.catalogSyncs)

	err := d.Dispatch(ctx, domain.Command{Type: "CMD:DANCE"})
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Equal(t, 1, metrics.commands[domain.CommandReconcile])
	require.Equal(t, 1, metrics.commands[domain.CommandSyncCatalog])
	require.Equal(t, 1, metrics.commands[domain.CommandType("CMD:DANCE")])
}

func TestSubscriber_HandleDispatchesEnvelope(t *testing.T) {
	s := openStore(t)
	d := NewDispatcher(s, &fakeReconciler{}, DispatcherOptions{})
	sub := NewSubscriber(nil, d, SubscriberOptions{})
	ctx := context.Background()

	payload, err := json.Marshal(domain.Command{
		Type:           domain.CommandProvision,
		ProviderID:     domain.MockProviderCode,
		ZoneID:         domain.MockZone,
		InstanceTypeID: domain.MockInstanceType,
	})
	require.NoError(t, err)
	sub.handle(ctx, payload)

	rows, err := s.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Garbage on the wire is logged and dropped.
	sub.handle(ctx, []byte("{not json"))
	rows, err = s.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "commands.db"), store.Options{})
	require.NoError(t, err)
	require.NoError(t, s.AutoMigrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeReconciler struct {
	reconciles   int
	catalogSyncs [][2]string
}

func (f *fakeReconciler) Reconcile(context.Context) error {
	f.reconciles++
	return nil
}

func (f *fakeReconciler) SyncCatalog(_ context.Context, providerID, zoneID string) error {
	f.catalogSyncs = append(f.catalogSyncs, [2]string{providerID, zoneID})
	return nil
}

type fakeMetrics struct {
	domain.NopMetrics
	mu       sync.Mutex
	commands map[domain.CommandType]int
}

func (f *fakeMetrics) ObserveCommand(commandType domain.CommandType, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[commandType]++
}
