// Package loops runs the orchestrator's job loops. Each loop claims a
// bounded batch of instance rows through the store's lease-claim statement
// and works every claimed row in its own goroutine, so any number of
// replicas can run all loops at once and one slow provider call never
// stalls a batch.
package loops

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Loop names, shared with the store's claim labels and the loop metrics.
const (
	LoopProvisioner = "provisioner"
	LoopHealth      = "health"
	LoopTerminator  = "terminator"
	LoopWatchdog    = "watchdog"
	LoopRecovery    = "recovery"
)

// Providers resolves the CloudProvider variant serving a logical provider
// code. Satisfied by provider.Manager.
type Providers interface {
	Provider(ctx context.Context, code string) (domain.CloudProvider, error)
}

// Runner drives registered loops on independent tickers. Every loop
// registers a liveness heartbeat sized to three intervals, so a loop that
// stops ticking degrades /healthz instead of failing silently. Tick errors
// are logged and counted, never fatal; interval changes from a config
// reload take effect on the tick after the change.
type Runner struct {
	logger   *zap.Logger
	metrics  domain.Metrics
	health   *telemetry.HealthTracker
	tunables func() domain.Tunables

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
	loops   []managedLoop
}

type managedLoop struct {
	name     string
	interval func(domain.Tunables) time.Duration
	tick     func(context.Context) error
}

// RunnerOptions configures a Runner. Logger defaults to a nop logger,
// Metrics to NopMetrics and Tunables to the built-in defaults; Health may
// be nil when no observability server is wired.
type RunnerOptions struct {
	Logger   *zap.Logger
	Metrics  domain.Metrics
	Health   *telemetry.HealthTracker
	Tunables func() domain.Tunables
}

func NewRunner(opts RunnerOptions) *Runner {
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
	return &Runner{
		logger:   logger.Named("loops"),
		metrics:  metrics,
		health:   opts.Health,
		tunables: tunables,
	}
}

// Add registers a loop. Must be called before Start.
func (r *Runner) Add(name string, interval func(domain.Tunables) time.Duration, tick func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loops = append(r.loops, managedLoop{name: name, interval: interval, tick: tick})
}

// Start launches every registered loop. Loops stop when ctx is cancelled
// or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.stop = make(chan struct{})
	for _, l := range r.loops {
		r.wg.Add(1)
		go r.run(ctx, l)
	}
	r.logger.Info("job loops started", zap.Int("loops", len(r.loops)))
}

// Stop halts all loops and waits for in-flight ticks to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("job loops stopped")
}

func (r *Runner) run(ctx context.Context, l managedLoop) {
	defer r.wg.Done()

	interval := l.interval(r.tunables())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var beat *telemetry.Heartbeat
	if r.health != nil {
		beat = r.health.Register(l.name, interval*3)
	}
	defer beat.Stop()

	for {
		select {
		case <-ticker.C:
			beat.Beat()
			r.tickOnce(ctx, l)
			if next := l.interval(r.tunables()); next != interval {
				interval = next
				ticker.Reset(interval)
				r.logger.Info("loop interval changed",
					telemetry.LoopField(l.name),
					telemetry.DurationField(interval),
				)
			}
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) tickOnce(ctx context.Context, l managedLoop) {
	ctx, span := telemetry.Tracer().Start(ctx, "loop."+l.name)
	defer span.End()

	start := time.Now()
	err := l.tick(ctx)
	r.metrics.ObserveLoopTick(l.name, time.Since(start), err)
	if err != nil {
		r.logger.Warn("loop tick failed",
			telemetry.EventField(telemetry.EventTick),
			telemetry.LoopField(l.name),
			zap.Error(err),
		)
	}
}

// eachInstance runs fn for every claimed row in its own goroutine and
// waits for the batch. Row-level failures are fn's business; they must not
// escape the goroutine.
func eachInstance(rows []domain.Instance, fn func(domain.Instance)) {
	var wg sync.WaitGroup
	for _, row := range rows {
		wg.Add(1)
		go func(inst domain.Instance) {
			defer wg.Done()
			fn(inst)
		}(row)
	}
	wg.Wait()
}
