package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// PrometheusMetrics implements domain.Metrics on promauto vectors.
type PrometheusMetrics struct {
	loopTicks     *prometheus.HistogramVec
	claims        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	providerCalls *prometheus.HistogramVec
	probes        *prometheus.CounterVec
	selections    *prometheus.HistogramVec
	commands      *prometheus.CounterVec
	instances     *prometheus.GaugeVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		loopTicks: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_loop_tick_duration_seconds",
				Help:    "Duration of job loop ticks in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"loop", "status"},
		),
		claims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_claimed_rows_total",
				Help: "Total instance rows claimed by job loops",
			},
			[]string{"loop"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_transitions_total",
				Help: "Total state machine transition attempts",
			},
			[]string{"from", "to", "applied"},
		),
		providerCalls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_provider_call_duration_seconds",
				Help:    "Duration of cloud provider calls in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"provider", "op", "status"},
		),
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_worker_probes_total",
				Help: "Total worker HTTP probes",
			},
			[]string{"kind", "status"},
		),
		selections: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_worker_selection_duration_seconds",
				Help:    "Duration of worker selection queries in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"outcome"},
		),
		commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_commands_total",
				Help: "Total control commands received on the command channel",
			},
			[]string{"type", "status"},
		),
		instances: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_instances",
				Help: "Instance rows by provider and status",
			},
			[]string{"provider", "status"},
		),
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (p *PrometheusMetrics) ObserveLoopTick(loop string, duration time.Duration, err error) {
	p.loopTicks.WithLabelValues(loop, statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveClaim(loop string, claimed int) {
	p.claims.WithLabelValues(loop).Add(float64(claimed))
}

func (p *PrometheusMetrics) ObserveTransition(from, to domain.InstanceStatus, applied bool) {
	label := "false"
	if applied {
		label = "true"
	}
	p.transitions.WithLabelValues(string(from), string(to), label).Inc()
}

func (p *PrometheusMetrics) ObserveProviderCall(provider, op string, duration time.Duration, err error) {
	p.providerCalls.WithLabelValues(provider, op, statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveProbe(kind string, err error) {
	p.probes.WithLabelValues(kind, statusLabel(err)).Inc()
}

func (p *PrometheusMetrics) ObserveSelection(outcome domain.SelectionOutcome, duration time.Duration) {
	p.selections.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveCommand(commandType domain.CommandType, err error) {
	p.commands.WithLabelValues(string(commandType), statusLabel(err)).Inc()
}

func (p *PrometheusMetrics) SetInstanceCount(provider string, status domain.InstanceStatus, count int) {
	p.instances.WithLabelValues(provider, string(status)).Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
