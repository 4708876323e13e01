package loops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Watchdog reconciles ready rows against provider ground truth. A VM the
// provider no longer knows is marked terminated with the provider-deleted
// tag; a VM that exists but never reported its model gets the worker's own
// model listing backfilled. The claim stamp doubles as the row's
// reconciliation freshness for the router.
type Watchdog struct {
	store     *store.Store
	providers Providers
	probe     domain.WorkerProbe
	logger    *zap.Logger
	metrics   domain.Metrics
	tunables  func() domain.Tunables
}

type WatchdogOptions struct {
	Store     *store.Store
	Providers Providers
	Probe     domain.WorkerProbe
	Logger    *zap.Logger
	Metrics   domain.Metrics
	Tunables  func() domain.Tunables
}

func NewWatchdog(opts WatchdogOptions) *Watchdog {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	tunables := opts.Tunables
	if tunables == nil {
		tunables = domain.DefaultTunables
	}
	return &Watchdog{
		store:     opts.Store,
		providers: opts.Providers,
		probe:     opts.Probe,
		logger:    logger.Named("watchdog"),
		metrics:   metrics,
		tunables:  tunables,
	}
}

func (w *Watchdog) Tick(ctx context.Context) error {
	rows, err := w.store.ClaimReady(ctx, w.tunables().ClaimBatchSize,
		domain.DefaultWatchdogLeaseSeconds*time.Second)
	if err != nil {
		return err
	}
	eachInstance(rows, func(inst domain.Instance) {
		w.inspect(ctx, inst)
	})
	return nil
}

func (w *Watchdog) inspect(ctx context.Context, inst domain.Instance) {
	provider, err := w.providers.Provider(ctx, inst.ProviderID)
	if err != nil {
		w.logger.Warn("provider unavailable",
			telemetry.InstanceIDField(inst.ID),
			telemetry.ProviderField(inst.ProviderID),
			zap.Error(err),
		)
		return
	}

	exists, err := provider.CheckInstanceExists(ctx, inst.ProviderInstanceID, inst.ZoneID)
	if err != nil {
		w.logger.Warn("provider call failed",
			telemetry.EventField(telemetry.EventProviderError),
			telemetry.InstanceIDField(inst.ID),
			telemetry.ProviderField(inst.ProviderID),
			zap.Error(err),
		)
		if clearErr := w.store.ClearLease(ctx, inst.ID); clearErr != nil {
			w.logger.Warn("clear lease failed", telemetry.InstanceIDField(inst.ID), zap.Error(clearErr))
		}
		return
	}

	if !exists {
		applied, err := w.store.MarkProviderDeleted(ctx, inst.ID, "instance disappeared from provider")
		if err != nil {
			w.logger.Warn("provider-deleted transition failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
			return
		}
		if applied {
			w.logger.Warn("ready instance deleted behind our back",
				telemetry.EventField(telemetry.EventProviderDeleted),
				telemetry.InstanceIDField(inst.ID),
				telemetry.ProviderInstanceIDField(inst.ProviderInstanceID),
				telemetry.ProviderField(inst.ProviderID),
			)
		}
		return
	}

	if inst.WorkerModelID == "" && inst.IPAddress != "" {
		w.backfillModel(ctx, inst)
	}
}

// backfillModel asks the worker which model it serves when the row never
// learned it through heartbeats.
func (w *Watchdog) backfillModel(ctx context.Context, inst domain.Instance) {
	models, err := w.probe.Models(ctx, inst.IPAddress)
	if err != nil {
		w.logger.Debug("model listing probe failed",
			telemetry.EventField(telemetry.EventProbeFailure),
			telemetry.InstanceIDField(inst.ID),
			zap.Error(err),
		)
		return
	}
	if len(models) == 0 {
		return
	}
	if err := w.store.SetWorkerTelemetry(ctx, inst.ID, models[0], "", nil); err != nil {
		w.logger.Warn("worker telemetry update failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
		return
	}
	w.logger.Info("worker model backfilled",
		telemetry.InstanceIDField(inst.ID),
		telemetry.ModelIDField(models[0]),
	)
}
