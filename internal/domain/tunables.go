package domain

import "time"

// Tunables are the runtime knobs safe to change without a restart. The
// config layer publishes a fresh snapshot when the config file changes;
// loops and the router read the snapshot at each tick or query, so a new
// value takes effect on the next pass.
type Tunables struct {
	ProvisionerIntervalSeconds int
	HealthIntervalSeconds      int
	TerminatorIntervalSeconds  int
	WatchdogIntervalSeconds    int
	RecoveryIntervalSeconds    int

	ClaimBatchSize         int
	HealthFailureThreshold int
	StalenessWindowSeconds int
}

// DefaultTunables returns the built-in values.
func DefaultTunables() Tunables {
	return Tunables{
		ProvisionerIntervalSeconds: DefaultProvisionerIntervalSeconds,
		HealthIntervalSeconds:      DefaultHealthIntervalSeconds,
		TerminatorIntervalSeconds:  DefaultTerminatorIntervalSeconds,
		WatchdogIntervalSeconds:    DefaultWatchdogIntervalSeconds,
		RecoveryIntervalSeconds:    DefaultRecoveryIntervalSeconds,
		ClaimBatchSize:             DefaultClaimBatchSize,
		HealthFailureThreshold:     DefaultHealthFailureThreshold,
		StalenessWindowSeconds:     DefaultStalenessWindowSeconds,
	}
}

// Normalize replaces non-positive fields with their defaults so a partial
// or broken config file can never stall a loop or zero a threshold.
func (t Tunables) Normalize() Tunables {
	def := DefaultTunables()
	if t.ProvisionerIntervalSeconds <= 0 {
		t.ProvisionerIntervalSeconds = def.ProvisionerIntervalSeconds
	}
	if t.HealthIntervalSeconds <= 0 {
		t.HealthIntervalSeconds = def.HealthIntervalSeconds
	}
	if t.TerminatorIntervalSeconds <= 0 {
		t.TerminatorIntervalSeconds = def.TerminatorIntervalSeconds
	}
	if t.WatchdogIntervalSeconds <= 0 {
		t.WatchdogIntervalSeconds = def.WatchdogIntervalSeconds
	}
	if t.RecoveryIntervalSeconds <= 0 {
		t.RecoveryIntervalSeconds = def.RecoveryIntervalSeconds
	}
	if t.ClaimBatchSize <= 0 {
		t.ClaimBatchSize = def.ClaimBatchSize
	}
	if t.HealthFailureThreshold <= 0 {
		t.HealthFailureThreshold = def.HealthFailureThreshold
	}
	if t.StalenessWindowSeconds <= 0 {
		t.StalenessWindowSeconds = def.StalenessWindowSeconds
	}
	return t
}

// ProvisionerInterval and friends convert the second counts to durations.
func (t Tunables) ProvisionerInterval() time.Duration {
	return time.Duration(t.ProvisionerIntervalSeconds) * time.Second
}

func (t Tunables) HealthInterval() time.Duration {
	return time.Duration(t.HealthIntervalSeconds) * time.Second
}

func (t Tunables) TerminatorInterval() time.Duration {
	return time.Duration(t.TerminatorIntervalSeconds) * time.Second
}

func (t Tunables) WatchdogInterval() time.Duration {
	return time.Duration(t.WatchdogIntervalSeconds) * time.Second
}

func (t Tunables) RecoveryInterval() time.Duration {
	return time.Duration(t.RecoveryIntervalSeconds) * time.Second
}

// StalenessWindow returns the clamped routing staleness window.
func (t Tunables) StalenessWindow() time.Duration {
	return ClampStalenessWindow(t.StalenessWindowSeconds)
}
