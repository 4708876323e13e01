package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// AuditWriter implements domain.AuditSink on the shared audit_logs table.
// Writes are fire-and-forget: a broken audit store is logged and swallowed,
// never allowed to block the operation being audited. Completion fields are
// filled exactly once; the log is append-only from the operator's view.
type AuditWriter struct {
	store *Store
}

func (s *Store) audit() *AuditWriter {
	s.auditOnce.Do(func() {
		s.auditWriter = &AuditWriter{store: s}
	})
	return s.auditWriter
}

// Audit exposes the store-backed audit sink for collaborators outside the
// state machine (loops, command handlers).
func (s *Store) Audit() domain.AuditSink {
	return s.audit()
}

// Begin inserts the started record and hands back its id for Complete.
func (w *AuditWriter) Begin(ctx context.Context, actionType, component, instanceID string, metadata map[string]string) string {
	record := domain.AuditRecord{
		ID:         uuid.NewString(),
		ActionType: actionType,
		Component:  component,
		Status:     domain.AuditStarted,
		InstanceID: instanceID,
		CreatedAt:  w.store.now().UTC(),
	}
	if len(metadata) > 0 {
		if encoded, err := json.Marshal(metadata); err == nil {
			record.Metadata = string(encoded)
		}
	}
	if err := w.store.db.WithContext(ctx).Create(&record).Error; err != nil {
		w.store.logger.Warn("audit begin failed",
			zap.String("action", actionType),
			zap.Error(err),
		)
		return ""
	}
	return record.ID
}

// Complete fills the completion fields of a started record. A nil err marks
// it completed; anything else marks it failed with the error's code and
// message. A record completed elsewhere is left untouched.
func (w *AuditWriter) Complete(ctx context.Context, auditID string, opErr error) {
	if auditID == "" {
		return
	}
	var record domain.AuditRecord
	if err := w.store.db.WithContext(ctx).First(&record, "id = ?", auditID).Error; err != nil {
		w.store.logger.Warn("audit complete failed",
			zap.String("auditID", auditID),
			zap.Error(err),
		)
		return
	}
	if record.Status != domain.AuditStarted {
		return
	}

	now := w.store.now().UTC()
	duration := now.Sub(record.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	set := map[string]any{
		"status":       domain.AuditCompleted,
		"completed_at": now,
		"duration_ms":  duration,
	}
	if opErr != nil {
		set["status"] = domain.AuditFailed
		set["error_code"] = string(domain.CodeOf(opErr))
		set["error_message"] = opErr.Error()
	}

	err := w.store.db.WithContext(ctx).Model(&domain.AuditRecord{}).
		Where("id = ? AND status = ?", auditID, domain.AuditStarted).
		Updates(set).Error
	if err != nil {
		w.store.logger.Warn("audit complete failed",
			zap.String("auditID", auditID),
			zap.Error(err),
		)
	}
}

var _ domain.AuditSink = (*AuditWriter)(nil)
