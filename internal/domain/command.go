package domain

// CommandType tags a control-plane message on the command channel.
type CommandType string

const (
	CommandProvision   CommandType = "CMD:PROVISION"
	CommandTerminate   CommandType = "CMD:TERMINATE"
	CommandReconcile   CommandType = "CMD:RECONCILE"
	CommandSyncCatalog CommandType = "CMD:SYNC_CATALOG"
)

// Command is the JSON envelope the control plane publishes. Delivery is
// best-effort and non-durable; the requeue and recovery loops compensate
// for lost messages, so handlers must be idempotent.
type Command struct {
	Type           CommandType `json:"type"`
	InstanceID     string      `json:"instance_id,omitempty"`
	ProviderID     string      `json:"provider_id,omitempty"`
	ZoneID         string      `json:"zone_id,omitempty"`
	InstanceTypeID string      `json:"instance_type_id,omitempty"`
	ModelID        string      `json:"model_id,omitempty"`
	Image          string      `json:"image,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}

// Known reports whether the command type is one the orchestrator handles.
func (t CommandType) Known() bool {
	switch t {
	case CommandProvision, CommandTerminate, CommandReconcile, CommandSyncCatalog:
		return true
	}
	return false
}
