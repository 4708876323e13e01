package telemetry

import (
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

const (
	FieldEvent              = "event"
	FieldLoop               = "loop"
	FieldProvider           = "provider"
	FieldZone               = "zone"
	FieldInstanceID         = "instanceID"
	FieldProviderInstanceID = "providerInstanceID"
	FieldStatus             = "status"
	FieldModelID            = "modelID"
	FieldDurationMs         = "duration_ms"
	FieldCommand            = "command"
	FieldAuditID            = "auditID"
)

const (
	EventTick             = "tick"
	EventClaim            = "claim"
	EventTransition       = "transition"
	EventTransitionNoop   = "transition_noop"
	EventProvisionAttempt = "provision_attempt"
	EventProvisionFailure = "provision_failure"
	EventHealthFailure    = "health_failure"
	EventStartupFailed    = "startup_failed"
	EventInstanceReady    = "instance_ready"
	EventTerminateAttempt = "terminate_attempt"
	EventTerminated       = "terminated"
	EventProviderDeleted  = "provider_deleted"
	EventStuckState       = "stuck_state"
	EventProviderError    = "provider_error"
	EventProbeFailure     = "probe_failure"
	EventSelection        = "selection"
	EventSelectionMiss    = "selection_miss"
	EventCommandReceived  = "command_received"
	EventCommandRejected  = "command_rejected"
	EventCatalogSynced    = "catalog_synced"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func LoopField(loop string) zap.Field {
	return zap.String(FieldLoop, loop)
}

func ProviderField(provider string) zap.Field {
	return zap.String(FieldProvider, provider)
}

func ZoneField(zone string) zap.Field {
	return zap.String(FieldZone, zone)
}

func InstanceIDField(instanceID string) zap.Field {
	return zap.String(FieldInstanceID, instanceID)
}

func ProviderInstanceIDField(id string) zap.Field {
	return zap.String(FieldProviderInstanceID, id)
}

func StatusField(status domain.InstanceStatus) zap.Field {
	return zap.String(FieldStatus, string(status))
}

func ModelIDField(modelID string) zap.Field {
	return zap.String(FieldModelID, modelID)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func CommandField(commandType domain.CommandType) zap.Field {
	return zap.String(FieldCommand, string(commandType))
}

func AuditIDField(auditID string) zap.Field {
	return zap.String(FieldAuditID, auditID)
}
