package loops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Terminator drives terminating rows to terminated. Each pass asks the
// provider whether the VM still exists: gone means the row is done,
// present means another terminate call. Provider errors clear the lease so
// the next tick retries sooner.
type Terminator struct {
	store     *store.Store
	providers Providers
	audit     domain.AuditSink
	logger    *zap.Logger
	metrics   domain.Metrics
	tunables  func() domain.Tunables
}

type TerminatorOptions struct {
	Store     *store.Store
	Providers Providers
	Audit     domain.AuditSink
	Logger    *zap.Logger
	Metrics   domain.Metrics
	Tunables  func() domain.Tunables
}

func NewTerminator(opts TerminatorOptions) *Terminator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	audit := opts.Audit
	if audit == nil {
		audit = domain.NopAuditSink{}
	}
	tunables := opts.Tunables
	if tunables == nil {
		tunables = domain.DefaultTunables
	}
	return &Terminator{
		store:     opts.Store,
		providers: opts.Providers,
		audit:     audit,
		logger:    logger.Named("terminator"),
		metrics:   metrics,
		tunables:  tunables,
	}
}

func (t *Terminator) Tick(ctx context.Context) error {
	rows, err := t.store.ClaimTerminating(ctx, t.tunables().ClaimBatchSize,
		domain.DefaultTerminatorLeaseSeconds*time.Second)
	if err != nil {
		return err
	}
	eachInstance(rows, func(inst domain.Instance) {
		t.retire(ctx, inst)
	})
	return nil
}

// retire makes one termination pass over a claimed row. Shared with the
// recovery loop, which re-drives rows the terminator has not touched in a
// while.
func (t *Terminator) retire(ctx context.Context, inst domain.Instance) {
	provider, err := t.providers.Provider(ctx, inst.ProviderID)
	if err != nil {
		t.logger.Warn("provider unavailable",
			telemetry.InstanceIDField(inst.ID),
			telemetry.ProviderField(inst.ProviderID),
			zap.Error(err),
		)
		return
	}

	exists, err := provider.CheckInstanceExists(ctx, inst.ProviderInstanceID, inst.ZoneID)
	if err != nil {
		t.providerFailed(ctx, inst, err)
		return
	}

	if !exists {
		applied, err := t.store.TerminatingToTerminated(ctx, inst.ID)
		if err != nil {
			t.logger.Warn("terminated transition failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
			return
		}
		if applied {
			t.logger.Info("instance terminated",
				telemetry.EventField(telemetry.EventTerminated),
				telemetry.InstanceIDField(inst.ID),
				telemetry.ProviderInstanceIDField(inst.ProviderInstanceID),
				telemetry.ProviderField(inst.ProviderID),
			)
		}
		return
	}

	auditID := t.audit.Begin(ctx, "instance_terminate", "terminator", inst.ID, map[string]string{
		"provider":             inst.ProviderID,
		"zone":                 inst.ZoneID,
		"provider_instance_id": inst.ProviderInstanceID,
	})
	_, err = provider.TerminateInstance(ctx, inst.ProviderInstanceID, inst.ZoneID)
	t.audit.Complete(ctx, auditID, err)
	if err != nil {
		t.providerFailed(ctx, inst, err)
		return
	}
	// Still present; the next pass confirms the disappearance.
	t.logger.Debug("terminate requested",
		telemetry.EventField(telemetry.EventTerminateAttempt),
		telemetry.InstanceIDField(inst.ID),
		telemetry.ProviderInstanceIDField(inst.ProviderInstanceID),
	)
}

func (t *Terminator) providerFailed(ctx context.Context, inst domain.Instance, cause error) {
	t.logger.Warn("provider call failed",
		telemetry.EventField(telemetry.EventProviderError),
		telemetry.InstanceIDField(inst.ID),
		telemetry.ProviderField(inst.ProviderID),
		zap.Error(cause),
	)
	if err := t.store.ClearLease(ctx, inst.ID); err != nil {
		t.logger.Warn("clear lease failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
	}
}
