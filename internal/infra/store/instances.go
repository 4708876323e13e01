package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// CreateInstance inserts a new provisioning row. A missing id is generated;
// status and created_at are always set here so callers cannot skip the front
// of the lifecycle graph.
func (s *Store) CreateInstance(ctx context.Context, inst *domain.Instance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	inst.Status = domain.StatusProvisioning
	inst.CreatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Create(inst).Error; err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	return nil
}

// GetInstance loads one row by id.
func (s *Store) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	var inst domain.Instance
	err := s.db.WithContext(ctx).First(&inst, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", id, err)
	}
	return &inst, nil
}

// ListInstances returns rows filtered by status, newest first. An empty
// status list returns everything.
func (s *Store) ListInstances(ctx context.Context, statuses ...domain.InstanceStatus) ([]domain.Instance, error) {
	query := s.db.WithContext(ctx).Model(&domain.Instance{}).Order("created_at DESC")
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var rows []domain.Instance
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return rows, nil
}

// CountByStatus groups live row counts for the instance gauge.
func (s *Store) CountByStatus(ctx context.Context) (map[string]map[domain.InstanceStatus]int, error) {
	type bucket struct {
		ProviderID string
		Status     domain.InstanceStatus
		N          int
	}
	var buckets []bucket
	err := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Select("provider_id, status, COUNT(*) AS n").
		Group("provider_id").Group("status").
		Find(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("count instances: %w", err)
	}
	out := make(map[string]map[domain.InstanceStatus]int)
	for _, b := range buckets {
		if out[b.ProviderID] == nil {
			out[b.ProviderID] = make(map[domain.InstanceStatus]int)
		}
		out[b.ProviderID][b.Status] = b.N
	}
	return out, nil
}

// UpdateInstanceIP records the address the provider assigned. Unconditional:
// the address is provider ground truth, not a lifecycle step.
func (s *Store) UpdateInstanceIP(ctx context.Context, id, ip string) error {
	err := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Where("id = ?", id).
		Update("ip_address", ip).Error
	if err != nil {
		return fmt.Errorf("update instance ip %s: %w", id, err)
	}
	return nil
}

// TouchHealthCheck stamps last_health_check after a probe attempt,
// successful or not.
func (s *Store) TouchHealthCheck(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Where("id = ?", id).
		Update("last_health_check", s.now().UTC()).Error
	if err != nil {
		return fmt.Errorf("touch health check %s: %w", id, err)
	}
	return nil
}

// SetWorkerTelemetry backfills what the worker reported about itself. The
// heartbeat collaborator owns these columns in steady state; the watchdog
// writes them only when they are missing.
func (s *Store) SetWorkerTelemetry(ctx context.Context, id, modelID, workerStatus string, queueDepth *int) error {
	set := map[string]any{
		"worker_last_heartbeat": s.now().UTC(),
	}
	if modelID != "" {
		set["worker_model_id"] = modelID
	}
	if workerStatus != "" {
		set["worker_status"] = workerStatus
	}
	if queueDepth != nil {
		set["worker_queue_depth"] = *queueDepth
	}
	err := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Where("id = ?", id).
		Updates(set).Error
	if err != nil {
		return fmt.Errorf("set worker telemetry %s: %w", id, err)
	}
	return nil
}

// ReadyWorkers returns candidate rows for worker selection: ready, with an
// address, whose worker reports ready (or has not reported at all), serving
// the requested model when one is named. Freshness filtering and ordering
// are the router's concern.
func (s *Store) ReadyWorkers(ctx context.Context, modelID string) ([]domain.Instance, error) {
	query := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Where("status = ?", domain.StatusReady).
		Where("ip_address <> ''").
		Where("worker_status IN ? OR worker_status = '' OR worker_status IS NULL",
			[]string{domain.WorkerStatusReady})
	if modelID != "" {
		query = query.Where("worker_model_id = ? OR worker_model_id = '' OR worker_model_id IS NULL", modelID)
	}
	var rows []domain.Instance
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ready workers: %w", err)
	}
	return rows, nil
}

// ProviderZone is one (provider, zone) pair with live rows, the unit of
// reconciliation and catalog sync work.
type ProviderZone struct {
	ProviderID string
	ZoneID     string
}

// LiveProviderZones lists the distinct provider/zone pairs that still have
// non-terminal rows.
func (s *Store) LiveProviderZones(ctx context.Context) ([]ProviderZone, error) {
	var pairs []ProviderZone
	err := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Distinct("provider_id", "zone_id").
		Where("status NOT IN ?", []domain.InstanceStatus{domain.StatusTerminated, domain.StatusStartupFailed}).
		Find(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("live provider zones: %w", err)
	}
	return pairs, nil
}

// FindByProviderInstanceID locates the row tracking a provider-side VM.
func (s *Store) FindByProviderInstanceID(ctx context.Context, providerID, providerInstanceID string) (*domain.Instance, error) {
	var inst domain.Instance
	err := s.db.WithContext(ctx).
		First(&inst, "provider_id = ? AND provider_instance_id = ?", providerID, providerInstanceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by provider instance id: %w", err)
	}
	return &inst, nil
}

// History returns the transition log for one instance, oldest first.
func (s *Store) History(ctx context.Context, instanceID string) ([]domain.InstanceStateHistory, error) {
	var rows []domain.InstanceStateHistory
	err := s.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", instanceID, err)
	}
	return rows, nil
}

// leaseCutoff converts a lease window into the newest last_reconciliation a
// claimable row may carry.
func (s *Store) leaseCutoff(lease time.Duration) time.Time {
	return s.now().UTC().Add(-lease)
}
