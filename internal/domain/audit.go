package domain

import (
	"context"
	"time"
)

// AuditStatus is the lifecycle of one audited operation.
type AuditStatus string

const (
	AuditStarted   AuditStatus = "started"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// AuditRecord is one row in the append-only action log. Begin inserts it
// with status=started; Complete fills the completion fields exactly once.
// The orchestrator writes this log and never reads it back; operators do.
type AuditRecord struct {
	ID           string      `gorm:"column:id;primaryKey;size:36"`
	ActionType   string      `gorm:"column:action_type;size:64;not null;index:idx_audit_action"`
	Component    string      `gorm:"column:component;size:32;not null"`
	Status       AuditStatus `gorm:"column:status;size:16;not null"`
	ErrorCode    string      `gorm:"column:error_code;size:64"`
	ErrorMessage string      `gorm:"column:error_message"`
	InstanceID   string      `gorm:"column:instance_id;size:36;index:idx_audit_instance"`
	DurationMs   int64       `gorm:"column:duration_ms"`
	Metadata     string      `gorm:"column:metadata"`
	CreatedAt    time.Time   `gorm:"column:created_at;not null"`
	CompletedAt  *time.Time  `gorm:"column:completed_at"`
}

func (AuditRecord) TableName() string { return "audit_logs" }

// AuditSink records significant operations as start/complete pairs. Sinks
// must swallow their own failures: a broken audit store never blocks the
// operation being audited.
type AuditSink interface {
	// Begin records the start of an operation and returns its audit id.
	Begin(ctx context.Context, actionType, component, instanceID string, metadata map[string]string) string
	// Complete finishes the record; a nil err marks it completed, anything
	// else marks it failed with the error's code and message.
	Complete(ctx context.Context, auditID string, err error)
}

// NopAuditSink discards all records. Used where auditing is not wired.
type NopAuditSink struct{}

func (NopAuditSink) Begin(context.Context, string, string, string, map[string]string) string {
	return ""
}

func (NopAuditSink) Complete(context.Context, string, error) {}
