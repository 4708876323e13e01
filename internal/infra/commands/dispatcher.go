package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Reconciler is the slice of the reconcile loop the command plane drives.
type Reconciler interface {
	Reconcile(ctx context.Context) error
	SyncCatalog(ctx context.Context, providerID, zoneID string) error
}

// Dispatcher applies command envelopes to the datastore and loops. Commands
// may be redelivered or arrive twice from impatient operators, so every
// handler is idempotent.
type Dispatcher struct {
	store      *store.Store
	reconciler Reconciler
	logger     *zap.Logger
	metrics    domain.Metrics
}

type DispatcherOptions struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
}

func NewDispatcher(st *store.Store, reconciler Reconciler, opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Dispatcher{
		store:      st,
		reconciler: reconciler,
		logger:     logger.Named("commands"),
		metrics:    metrics,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd domain.Command) (err error) {
	defer func() { d.metrics.ObserveCommand(cmd.Type, err) }()

	switch cmd.Type {
	case domain.CommandProvision:
		return d.provision(ctx, cmd)
	case domain.CommandTerminate:
		return d.terminate(ctx, cmd)
	case domain.CommandReconcile:
		return d.reconciler.Reconcile(ctx)
	case domain.CommandSyncCatalog:
		return d.reconciler.SyncCatalog(ctx, cmd.ProviderID, cmd.ZoneID)
	default:
		d.logger.Warn("rejecting unknown command",
			telemetry.EventField(telemetry.EventCommandRejected),
			zap.String("type", string(cmd.Type)),
		)
		return domain.E(domain.CodeConfiguration, "commands.dispatch",
			fmt.Sprintf("unknown command type %q", cmd.Type), nil)
	}
}

// provision records the desired instance; the provisioner loop claims it
// once the row passes the minimum age.
func (d *Dispatcher) provision(ctx context.Context, cmd domain.Command) error {
	if cmd.ProviderID == "" || cmd.ZoneID == "" || cmd.InstanceTypeID == "" {
		return domain.E(domain.CodeConfiguration, "commands.provision",
			"provider, zone and instance type are required", nil)
	}
	if cmd.Image != "" {
		// The boot image is fleet configuration; per-instance overrides do
		// not survive the datastore schema.
		d.logger.Warn("ignoring image override on provision command",
			zap.String("image", cmd.Image),
		)
	}

	inst := &domain.Instance{
		ProviderID:     cmd.ProviderID,
		ZoneID:         cmd.ZoneID,
		InstanceTypeID: cmd.InstanceTypeID,
		ModelID:        cmd.ModelID,
	}
	if err := d.store.CreateInstance(ctx, inst); err != nil {
		return err
	}
	d.logger.Info("instance requested",
		telemetry.EventField(telemetry.EventCommandReceived),
		telemetry.InstanceIDField(inst.ID),
		telemetry.ProviderField(cmd.ProviderID),
		telemetry.ZoneField(cmd.ZoneID),
		telemetry.ModelIDField(cmd.ModelID),
	)
	return nil
}

func (d *Dispatcher) terminate(ctx context.Context, cmd domain.Command) error {
	if cmd.InstanceID == "" {
		return domain.E(domain.CodeConfiguration, "commands.terminate",
			"instance id is required", nil)
	}
	reason := cmd.Reason
	if reason == "" {
		reason = "termination requested"
	}

	applied, err := d.store.RequestTermination(ctx, cmd.InstanceID, reason)
	if err != nil {
		return err
	}
	if !applied {
		// Already on its way out, or never reached a live state.
		d.logger.Info("termination request was a no-op",
			telemetry.InstanceIDField(cmd.InstanceID),
		)
	}
	return nil
}
