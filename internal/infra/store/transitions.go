package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Audit action types, one per state machine operation.
const (
	OpProvisioningToBooting   = "provisioning_to_booting"
	OpBootingToInstalling     = "booting_to_installing"
	OpInstallingToStarting    = "installing_to_starting"
	OpBootingToReady          = "booting_to_ready"
	OpBootingToStartupFailed  = "booting_to_startup_failed"
	OpMarkProviderDeleted     = "mark_provider_deleted"
	OpRequestTermination      = "request_termination"
	OpTerminatingToTerminated = "terminating_to_terminated"
)

const stateMachineComponent = "state_machine"

var errStateConflict = &domain.Error{Code: domain.CodeStateConflict, Message: "row already transitioned elsewhere"}

// applyTransition is the single write path of the state machine: one UPDATE
// guarded by the exact status the row was observed in. Zero rows affected
// means another writer got there first and is a benign no-op, never an
// error. On success it appends the history row and writes the audit
// start/complete pair.
func (s *Store) applyTransition(ctx context.Context, op string, inst *domain.Instance, to domain.InstanceStatus, reason string, set map[string]any) (bool, error) {
	from := inst.Status
	if set == nil {
		set = map[string]any{}
	}
	set["status"] = to

	auditID := s.audit().Begin(ctx, op, stateMachineComponent, inst.ID, map[string]string{
		"from": string(from),
		"to":   string(to),
	})

	res := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Where("id = ? AND status = ?", inst.ID, from).
		Updates(set)
	if res.Error != nil {
		err := fmt.Errorf("transition %s %s: %w", op, inst.ID, res.Error)
		s.audit().Complete(ctx, auditID, err)
		s.metrics.ObserveTransition(from, to, false)
		return false, err
	}
	if res.RowsAffected == 0 {
		s.audit().Complete(ctx, auditID, errStateConflict)
		s.metrics.ObserveTransition(from, to, false)
		s.logger.Debug("transition not applied",
			telemetry.EventField(telemetry.EventTransitionNoop),
			telemetry.InstanceIDField(inst.ID),
			zap.String("op", op),
			telemetry.StatusField(from),
		)
		return false, nil
	}

	history := domain.InstanceStateHistory{
		InstanceID: inst.ID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&history).Error; err != nil {
		// The transition itself stuck; surface the gap to operators and
		// move on rather than unwinding a committed status change.
		s.logger.Error("history append failed",
			telemetry.InstanceIDField(inst.ID),
			zap.String("op", op),
			zap.Error(err),
		)
		s.audit().Complete(ctx, auditID, fmt.Errorf("history append: %w", err))
	} else {
		s.audit().Complete(ctx, auditID, nil)
	}

	s.metrics.ObserveTransition(from, to, true)
	s.logger.Info("transition applied",
		telemetry.EventField(telemetry.EventTransition),
		telemetry.InstanceIDField(inst.ID),
		zap.String("op", op),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return true, nil
}

// transitionFrom loads the row and applies the transition when its current
// status is in the allowed source set. A wrong-source row is a benign
// no-op; a missing row is an error.
func (s *Store) transitionFrom(ctx context.Context, op, id string, from []domain.InstanceStatus, to domain.InstanceStatus, reason string, set map[string]any) (bool, error) {
	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return false, err
	}
	if !statusIn(inst.Status, from) {
		s.metrics.ObserveTransition(inst.Status, to, false)
		return false, nil
	}
	return s.applyTransition(ctx, op, inst, to, reason, set)
}

// ProvisioningToBooting records the provider-side instance the create
// procedure obtained. provider_instance_id is assigned exactly once: a row
// that already carries one no-ops even if still provisioning.
func (s *Store) ProvisioningToBooting(ctx context.Context, id, providerInstanceID string) (bool, error) {
	if providerInstanceID == "" {
		return false, domain.E(domain.CodeInternal, OpProvisioningToBooting, "provider instance id is required", nil)
	}
	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return false, err
	}
	if inst.Status != domain.StatusProvisioning || inst.ProviderInstanceID != "" {
		s.metrics.ObserveTransition(inst.Status, domain.StatusBooting, false)
		return false, nil
	}
	return s.applyTransition(ctx, OpProvisioningToBooting, inst, domain.StatusBooting,
		"provider instance created", map[string]any{
			"provider_instance_id": providerInstanceID,
		})
}

// BootingToInstalling advances a row whose worker reported it is installing.
func (s *Store) BootingToInstalling(ctx context.Context, id string) (bool, error) {
	return s.transitionFrom(ctx, OpBootingToInstalling, id,
		[]domain.InstanceStatus{domain.StatusBooting},
		domain.StatusInstalling, "worker installing", nil)
}

// InstallingToStarting advances to starting. Booting is accepted as a
// source too, recovering rows whose installing report was missed.
func (s *Store) InstallingToStarting(ctx context.Context, id string) (bool, error) {
	return s.transitionFrom(ctx, OpInstallingToStarting, id,
		[]domain.InstanceStatus{domain.StatusInstalling, domain.StatusBooting},
		domain.StatusStarting, "worker starting", nil)
}

// BootingToReady completes the boot phase: the worker answered its health
// probe. Resets the failure counter and records the address when the caller
// learned one.
func (s *Store) BootingToReady(ctx context.Context, id, ip string) (bool, error) {
	set := map[string]any{
		"ready_at":              s.now().UTC(),
		"health_check_failures": 0,
		"error_code":            "",
		"error_message":         "",
	}
	if ip != "" {
		set["ip_address"] = ip
	}
	return s.transitionFrom(ctx, OpBootingToReady, id,
		domain.BootPhaseStatuses, domain.StatusReady, "worker healthy", set)
}

// BootingToStartupFailed declares a boot dead, from any boot-phase status.
// Terminal; failed_at is set once and survives repeated declarations.
func (s *Store) BootingToStartupFailed(ctx context.Context, id, code, message string) (bool, error) {
	return s.transitionFrom(ctx, OpBootingToStartupFailed, id,
		domain.BootPhaseStatuses, domain.StatusStartupFailed, message, map[string]any{
			"error_code":    code,
			"error_message": message,
			"failed_at":     gorm.Expr("COALESCE(failed_at, ?)", s.now().UTC()),
		})
}

// UpdateBootingHealthFailures writes the consecutive-failure counter.
// Counter-only: no history row, no audit pair. Guarded by the boot-phase
// set so a row that reached ready or failed meanwhile is left alone.
func (s *Store) UpdateBootingHealthFailures(ctx context.Context, id string, failures int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Where("id = ? AND status IN ?", id, domain.BootPhaseStatuses).
		Updates(map[string]any{
			"health_check_failures": failures,
			"last_health_check":     s.now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("update health failures %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkProviderDeleted handles the watchdog's finding that the provider no
// longer knows a ready instance: straight to terminated, tagged so the
// control plane can tell an external deletion from an orchestrated one.
func (s *Store) MarkProviderDeleted(ctx context.Context, id, reason string) (bool, error) {
	return s.transitionFrom(ctx, OpMarkProviderDeleted, id,
		[]domain.InstanceStatus{domain.StatusReady},
		domain.StatusTerminated, reason, map[string]any{
			"deletion_reason":     reason,
			"deleted_by_provider": true,
			"terminated_at":       s.now().UTC(),
		})
}

// RequestTermination moves any live row toward teardown. A row that never
// obtained a provider instance has nothing to tear down and goes straight
// to terminated; everything else enters terminating for the terminator
// loop to drive.
func (s *Store) RequestTermination(ctx context.Context, id, reason string) (bool, error) {
	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return false, err
	}
	if !inst.Status.Live() {
		s.metrics.ObserveTransition(inst.Status, domain.StatusTerminating, false)
		return false, nil
	}
	if inst.ProviderInstanceID == "" {
		return s.applyTransition(ctx, OpRequestTermination, inst, domain.StatusTerminated,
			reason, map[string]any{
				"deletion_reason": reason,
				"terminated_at":   s.now().UTC(),
			})
	}
	return s.applyTransition(ctx, OpRequestTermination, inst, domain.StatusTerminating,
		reason, map[string]any{
			"deletion_reason": reason,
		})
}

// TerminatingToTerminated finishes teardown once the provider confirms the
// instance is gone.
func (s *Store) TerminatingToTerminated(ctx context.Context, id string) (bool, error) {
	return s.transitionFrom(ctx, OpTerminatingToTerminated, id,
		[]domain.InstanceStatus{domain.StatusTerminating},
		domain.StatusTerminated, "provider confirmed deletion", map[string]any{
			"terminated_at": s.now().UTC(),
		})
}

func statusIn(status domain.InstanceStatus, set []domain.InstanceStatus) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}
