package loops

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Recovery is the deadlock breaker behind the other loops. Terminating
// rows nobody has touched for the idle window get another termination
// pass; boot-phase rows far past any plausible boot time are declared
// startup_failed so they stop absorbing health checks.
type Recovery struct {
	store      *store.Store
	terminator *Terminator
	logger     *zap.Logger
	metrics    domain.Metrics
	tunables   func() domain.Tunables
	now        func() time.Time
}

type RecoveryOptions struct {
	Store      *store.Store
	Terminator *Terminator
	Logger     *zap.Logger
	Metrics    domain.Metrics
	Tunables   func() domain.Tunables
	Now        func() time.Time
}

func NewRecovery(opts RecoveryOptions) *Recovery {
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
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Recovery{
		store:      opts.Store,
		terminator: opts.Terminator,
		logger:     logger.Named("recovery"),
		metrics:    metrics,
		tunables:   tunables,
		now:        now,
	}
}

func (r *Recovery) Tick(ctx context.Context) error {
	batch := r.tunables().ClaimBatchSize

	stuck, termErr := r.store.ClaimStuckTerminating(ctx, batch,
		domain.DefaultRecoveryTerminatingIdleSeconds*time.Second)
	if termErr == nil {
		eachInstance(stuck, func(inst domain.Instance) {
			r.logger.Warn("re-driving stalled termination",
				telemetry.EventField(telemetry.EventStuckState),
				telemetry.InstanceIDField(inst.ID),
				telemetry.ProviderField(inst.ProviderID),
			)
			r.terminator.retire(ctx, inst)
		})
	}

	dead, bootErr := r.store.ClaimStuckBooting(ctx, batch,
		domain.DefaultRecoveryBootingMaxAgeSeconds*time.Second,
		domain.DefaultRecoveryBootingLeaseIdleSecs*time.Second)
	if bootErr == nil {
		eachInstance(dead, func(inst domain.Instance) {
			r.failStuckBoot(ctx, inst)
		})
	}

	if termErr != nil {
		return termErr
	}
	return bootErr
}

func (r *Recovery) failStuckBoot(ctx context.Context, inst domain.Instance) {
	age := r.now().UTC().Sub(inst.CreatedAt).Round(time.Minute)
	msg := fmt.Sprintf("still %s %s after creation with no progress", inst.Status, age)
	applied, err := r.store.BootingToStartupFailed(ctx, inst.ID, string(domain.CodeStuckState), msg)
	if err != nil {
		r.logger.Warn("startup-failed transition failed", telemetry.InstanceIDField(inst.ID), zap.Error(err))
		return
	}
	if applied {
		r.logger.Warn("boot declared dead",
			telemetry.EventField(telemetry.EventStuckState),
			telemetry.InstanceIDField(inst.ID),
			telemetry.StatusField(inst.Status),
			telemetry.ProviderField(inst.ProviderID),
			zap.Duration("age", age),
		)
	}
}
