package domain

import "time"

// InstanceStatus is the lifecycle state of a worker instance. Transitions
// only follow the graph below; every write is guarded by the current status
// so concurrent writers race safely (the loser no-ops).
//
//	provisioning → booting → installing → starting → ready → terminating → terminated
//	{booting, installing, starting} → startup_failed
//	ready → terminated            (deleted behind our back by the provider)
type InstanceStatus string

const (
	StatusProvisioning  InstanceStatus = "provisioning"
	StatusBooting       InstanceStatus = "booting"
	StatusInstalling    InstanceStatus = "installing"
	StatusStarting      InstanceStatus = "starting"
	StatusReady         InstanceStatus = "ready"
	StatusTerminating   InstanceStatus = "terminating"
	StatusTerminated    InstanceStatus = "terminated"
	StatusStartupFailed InstanceStatus = "startup_failed"
)

// BootPhaseStatuses is the set of statuses between provider creation and
// readiness. Health checking, failure counting and startup-failure
// declaration all operate on this set.
var BootPhaseStatuses = []InstanceStatus{StatusBooting, StatusInstalling, StatusStarting}

// Terminal reports whether no further transition can leave the status.
func (s InstanceStatus) Terminal() bool {
	return s == StatusTerminated || s == StatusStartupFailed
}

// BootPhase reports whether the status belongs to BootPhaseStatuses.
func (s InstanceStatus) BootPhase() bool {
	return s == StatusBooting || s == StatusInstalling || s == StatusStarting
}

// Live reports whether the instance still has (or may soon have) a backing
// provider resource that termination must tear down.
func (s InstanceStatus) Live() bool {
	switch s {
	case StatusProvisioning, StatusBooting, StatusInstalling, StatusStarting, StatusReady:
		return true
	}
	return false
}

// WorkerStatus values reported by the inference worker's own heartbeat.
const (
	WorkerStatusReady = "ready"
	WorkerStatusBusy  = "busy"
	WorkerStatusError = "error"
)

// Instance is one cloud VM acting as an inference worker. Rows live in the
// shared datastore and are mutated only through narrow, status-guarded
// single-row updates; LastReconciliation doubles as the soft claim lease
// that makes a row invisible to other loop replicas for the lease window.
type Instance struct {
	ID                 string         `gorm:"column:id;primaryKey;size:36"`
	ProviderID         string         `gorm:"column:provider_id;size:32;not null;index:idx_instances_provider"`
	ZoneID             string         `gorm:"column:zone_id;size:64;not null"`
	InstanceTypeID     string         `gorm:"column:instance_type_id;size:64;not null"`
	ModelID            string         `gorm:"column:model_id;size:64"`
	ProviderInstanceID string         `gorm:"column:provider_instance_id;size:128;index:idx_instances_provider_instance"`
	IPAddress          string         `gorm:"column:ip_address;size:64"`
	Status             InstanceStatus `gorm:"column:status;size:24;not null;index:idx_instances_status"`

	ErrorCode    string `gorm:"column:error_code;size:64"`
	ErrorMessage string `gorm:"column:error_message"`

	HealthCheckFailures int        `gorm:"column:health_check_failures;not null;default:0"`
	LastHealthCheck     *time.Time `gorm:"column:last_health_check"`
	LastReconciliation  *time.Time `gorm:"column:last_reconciliation;index:idx_instances_lease"`
	RetryCount          int        `gorm:"column:retry_count;not null;default:0"`

	DeletionReason    string `gorm:"column:deletion_reason;size:128"`
	DeletedByProvider bool   `gorm:"column:deleted_by_provider;not null;default:false"`

	WorkerModelID       string     `gorm:"column:worker_model_id;size:64"`
	WorkerStatus        string     `gorm:"column:worker_status;size:24"`
	WorkerLastHeartbeat *time.Time `gorm:"column:worker_last_heartbeat"`
	WorkerQueueDepth    *int       `gorm:"column:worker_queue_depth"`

	CreatedAt    time.Time  `gorm:"column:created_at;not null;index:idx_instances_created"`
	ReadyAt      *time.Time `gorm:"column:ready_at"`
	TerminatedAt *time.Time `gorm:"column:terminated_at"`
	FailedAt     *time.Time `gorm:"column:failed_at"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Instance) TableName() string { return "instances" }

// Freshness is the most recent of the worker heartbeat, the last health
// check and the last reconciliation. The router excludes instances whose
// freshness falls outside the staleness window.
func (i Instance) Freshness() time.Time {
	var newest time.Time
	for _, ts := range []*time.Time{i.WorkerLastHeartbeat, i.LastHealthCheck, i.LastReconciliation} {
		if ts != nil && ts.After(newest) {
			newest = *ts
		}
	}
	return newest
}

// InstanceStateHistory is the append-only transition log. Rows reference the
// instance by id and are never mutated.
type InstanceStateHistory struct {
	ID         uint           `gorm:"column:id;primaryKey;autoIncrement"`
	InstanceID string         `gorm:"column:instance_id;size:36;not null;index:idx_history_instance"`
	FromStatus InstanceStatus `gorm:"column:from_status;size:24;not null"`
	ToStatus   InstanceStatus `gorm:"column:to_status;size:24;not null"`
	Reason     string         `gorm:"column:reason;size:256"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
}

func (InstanceStateHistory) TableName() string { return "instance_state_history" }
