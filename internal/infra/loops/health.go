package loops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Worker phases a live agent reports through its health endpoint while the
// model is still coming up.
const (
	workerPhaseInstalling = "installing"
	workerPhaseStarting   = "starting"
)

// HealthChecker probes boot-phase workers and walks them toward ready. A
// row with no address first asks the provider for one. A reachable worker
// resets the consecutive-failure counter and moves through the boot phases
// its agent reports; an unreachable one counts a failure, and a row past
// the threshold is declared startup_failed.
type HealthChecker struct {
	store     *store.Store
	providers Providers
	probe     domain.WorkerProbe
	logger    *zap.Logger
	metrics   domain.Metrics
	tunables  func() domain.Tunables
}

type HealthCheckerOptions struct {
	Store     *store.Store
	Providers Providers
	Probe     domain.WorkerProbe
	Logger    *zap.Logger
	Metrics   domain.Metrics
	Tunables  func() domain.Tunables
}

func NewHealthChecker(opts HealthCheckerOptions) *HealthChecker {
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
	return &HealthChecker{
		store:     opts.Store,
		providers: opts.Providers,
		probe:     opts.Probe,
		logger:    logger.Named("health"),
		metrics:   metrics,
		tunables:  tunables,
	}
}

func (h *HealthChecker) Tick(ctx context.Context) error {
	t := h.tunables()
	rows, err := h.store.ClaimBootPhase(ctx, t.ClaimBatchSize,
		domain.DefaultHealthLeaseSeconds*time.Second)
	if err != nil {
		return err
	}
	eachInstance(rows, func(inst domain.Instance) {
		h.check(ctx, inst, t.HealthFailureThreshold)
	})
	return nil
}

func (h *HealthChecker) check(ctx context.Context, inst domain.Instance, threshold int) {
	ip := inst.IPAddress
	if ip == "" {
		provider, err := h.providers.Provider(ctx, inst.ProviderID)
		if err != nil {
			h.logger.Warn("provider unavailable",
				telemetry.InstanceIDField(inst.ID),
				telemetry.ProviderField(inst.ProviderID),
				zap.Error(err),
			)
			return
		}
		ip, err = provider.GetInstanceIP(ctx, inst.ProviderInstanceID, inst.ZoneID)
		if err != nil {
			h.countFailure(ctx, inst, threshold, err)
			return
		}
		if ip == "" {
			h.countFailure(ctx, inst, threshold, errors.New("no address assigned yet"))
			return
		}
		if err := h.store.UpdateInstanceIP(ctx, inst.ID, ip); err != nil {
			h.logger.Warn("store ip update failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
			return
		}
	}

	health, err := h.probe.Health(ctx, ip)
	if err != nil {
		h.countFailure(ctx, inst, threshold, err)
		return
	}

	if err := h.store.TouchHealthCheck(ctx, inst.ID); err != nil {
		h.logger.Warn("touch health check failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
	}
	if health.ModelID != "" || health.Status != "" {
		if err := h.store.SetWorkerTelemetry(ctx, inst.ID, health.ModelID, health.Status, health.QueueDepth); err != nil {
			h.logger.Warn("worker telemetry update failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
		}
	}

	switch {
	case health.Status == domain.WorkerStatusReady:
		applied, err := h.store.BootingToReady(ctx, inst.ID, ip)
		if err != nil {
			h.logger.Warn("ready transition failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
			return
		}
		if applied {
			h.logger.Info("worker ready",
				telemetry.EventField(telemetry.EventInstanceReady),
				telemetry.InstanceIDField(inst.ID),
				telemetry.ModelIDField(health.ModelID),
				zap.String("ip", ip),
			)
		}
	case health.Phase == workerPhaseStarting:
		if _, err := h.store.InstallingToStarting(ctx, inst.ID); err != nil {
			h.logger.Warn("starting transition failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
		}
		h.resetFailures(ctx, inst)
	case health.Phase == workerPhaseInstalling:
		if _, err := h.store.BootingToInstalling(ctx, inst.ID); err != nil {
			h.logger.Warn("installing transition failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
		}
		h.resetFailures(ctx, inst)
	default:
		// Alive but not ready and no phase reported. Contact alone resets
		// the consecutive-failure count.
		h.resetFailures(ctx, inst)
	}
}

func (h *HealthChecker) resetFailures(ctx context.Context, inst domain.Instance) {
	if inst.HealthCheckFailures == 0 {
		return
	}
	if _, err := h.store.UpdateBootingHealthFailures(ctx, inst.ID, 0); err != nil {
		h.logger.Warn("failure counter reset failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
	}
}

func (h *HealthChecker) countFailure(ctx context.Context, inst domain.Instance, threshold int, cause error) {
	failures := inst.HealthCheckFailures + 1
	if failures < threshold {
		if _, err := h.store.UpdateBootingHealthFailures(ctx, inst.ID, failures); err != nil {
			h.logger.Warn("failure counter update failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
			return
		}
		h.logger.Debug("health check missed",
			telemetry.EventField(telemetry.EventHealthFailure),
			telemetry.InstanceIDField(inst.ID),
			zap.Int("failures", failures),
			zap.Int("threshold", threshold),
			zap.Error(cause),
		)
		return
	}

	msg := fmt.Sprintf("no healthy response after %d checks: %v", failures, cause)
	applied, err := h.store.BootingToStartupFailed(ctx, inst.ID, "HEALTH_CHECK_FAILED", msg)
	if err != nil {
		h.logger.Warn("startup-failed transition failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
		return
	}
	if applied {
		h.logger.Warn("worker never became healthy",
			telemetry.EventField(telemetry.EventStartupFailed),
			telemetry.InstanceIDField(inst.ID),
			telemetry.ProviderField(inst.ProviderID),
			zap.Int("failures", failures),
		)
	}
}
