package domain

import "time"

// Loop cadence and claim tuning. Each loop excludes rows whose lease
// (last_reconciliation) is younger than its lease window, so a crashed
// claimant is reclaimable after one window.
const (
	DefaultProvisionerIntervalSeconds = 10
	DefaultHealthIntervalSeconds      = 10
	DefaultTerminatorIntervalSeconds  = 10
	DefaultWatchdogIntervalSeconds    = 10
	DefaultRecoveryIntervalSeconds    = 30

	DefaultClaimBatchSize = 25

	DefaultProvisionerLeaseSeconds = 60
	DefaultHealthLeaseSeconds      = 10
	DefaultTerminatorLeaseSeconds  = 30
	DefaultWatchdogLeaseSeconds    = 60
	DefaultRecoveryLeaseSeconds    = 60
)

// Provisioning requeue: compensates for lost PROVISION deliveries.
const (
	DefaultProvisionMinAgeSeconds = 30
	DefaultMaxProvisionRetries    = 5
)

// Health checking. The failure threshold is deliberately configuration, not
// a buried literal; boot of a large model can take many consecutive probe
// misses before it is genuinely dead.
const (
	DefaultHealthFailureThreshold = 40
	DefaultWorkerPort             = 8000
	DefaultWorkerHealthPath       = "/health"
	DefaultWorkerModelsPath       = "/v1/models"
	DefaultProbeTimeoutSeconds    = 5
)

// Recovery heuristics converting silent stalls into explicit states.
const (
	DefaultRecoveryTerminatingIdleSeconds = 120
	DefaultRecoveryBootingMaxAgeSeconds   = 2 * 60 * 60
	DefaultRecoveryBootingLeaseIdleSecs   = 5 * 60
)

// Worker selection.
const (
	DefaultStalenessWindowSeconds = 300
	MinStalenessWindowSeconds     = 10
	MaxStalenessWindowSeconds     = 86400
	DefaultSelectionCandidates    = 50
)

// Provider HTTP client bounds: a stalled vendor must not hang a loop.
const (
	DefaultProviderConnectTimeoutSeconds = 5
	DefaultProviderRequestTimeoutSeconds = 20
)

// Mock provider.
const (
	MockProviderCode          = "mock"
	MockZone                  = "local"
	MockInstanceType          = "mock-local-instance"
	DefaultMockTerminateDelay = 30 * time.Second
)

// Command channel.
const (
	DefaultCommandSubject = "inventiv.agents.commands"
	DefaultCommandQueue   = "orchestrator"
)

// Listen addresses.
const (
	DefaultObservabilityListenAddress = "0.0.0.0:9090"
	DefaultSelectionListenAddress     = "0.0.0.0:8080"
)

// ClampStalenessWindow bounds a configured staleness window to the allowed
// range, falling back to the default for non-positive input.
func ClampStalenessWindow(seconds int) time.Duration {
	switch {
	case seconds <= 0:
		seconds = DefaultStalenessWindowSeconds
	case seconds < MinStalenessWindowSeconds:
		seconds = MinStalenessWindowSeconds
	case seconds > MaxStalenessWindowSeconds:
		seconds = MaxStalenessWindowSeconds
	}
	return time.Duration(seconds) * time.Second
}
