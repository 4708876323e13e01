package domain

import "time"

// SelectionOutcome labels the result of a worker-selection query.
type SelectionOutcome string

const (
	SelectionOutcomeHit      SelectionOutcome = "hit"
	SelectionOutcomeSticky   SelectionOutcome = "sticky"
	SelectionOutcomeNoWorker SelectionOutcome = "no_worker"
	SelectionOutcomeError    SelectionOutcome = "error"
)

// Metrics records operational metrics for loops, transitions, provider
// calls, probes, routing and command handling.
type Metrics interface {
	ObserveLoopTick(loop string, duration time.Duration, err error)
	ObserveClaim(loop string, claimed int)
	ObserveTransition(from, to InstanceStatus, applied bool)
	ObserveProviderCall(provider, op string, duration time.Duration, err error)
	ObserveProbe(kind string, err error)
	ObserveSelection(outcome SelectionOutcome, duration time.Duration)
	ObserveCommand(commandType CommandType, err error)
	SetInstanceCount(provider string, status InstanceStatus, count int)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveLoopTick(string, time.Duration, error)             {}
func (NopMetrics) ObserveClaim(string, int)                                 {}
func (NopMetrics) ObserveTransition(InstanceStatus, InstanceStatus, bool)   {}
func (NopMetrics) ObserveProviderCall(string, string, time.Duration, error) {}
func (NopMetrics) ObserveProbe(string, error)                               {}
func (NopMetrics) ObserveSelection(SelectionOutcome, time.Duration)         {}
func (NopMetrics) ObserveCommand(CommandType, error)                        {}
func (NopMetrics) SetInstanceCount(string, InstanceStatus, int)             {}

var _ Metrics = NopMetrics{}
