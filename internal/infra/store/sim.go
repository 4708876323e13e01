package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// Simulated-instance persistence backing the mock provider. Rows live in the
// same datastore as real instances so a restarted orchestrator still sees the
// VMs its mock provider "created".

func (s *Store) CreateSimInstance(ctx context.Context, sim *domain.SimInstance) error {
	now := s.now().UTC()
	sim.CreatedAt = now
	sim.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(sim).Error; err != nil {
		return fmt.Errorf("create sim instance %s: %w", sim.ProviderInstanceID, err)
	}
	return nil
}

func (s *Store) GetSimInstance(ctx context.Context, providerInstanceID, zone string) (*domain.SimInstance, error) {
	var sim domain.SimInstance
	err := s.db.WithContext(ctx).
		First(&sim, "provider_instance_id = ? AND zone = ?", providerInstanceID, zone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sim instance %s: %w", providerInstanceID, err)
	}
	return &sim, nil
}

func (s *Store) SaveSimInstance(ctx context.Context, sim *domain.SimInstance) error {
	sim.UpdatedAt = s.now().UTC()
	err := s.db.WithContext(ctx).
		Model(&domain.SimInstance{}).
		Where("provider_instance_id = ? AND zone = ?", sim.ProviderInstanceID, sim.Zone).
		Updates(map[string]any{
			"status":       sim.Status,
			"ip_address":   sim.IPAddress,
			"delete_after": sim.DeleteAfter,
			"updated_at":   sim.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("save sim instance %s: %w", sim.ProviderInstanceID, err)
	}
	return nil
}

func (s *Store) ListSimInstances(ctx context.Context, zone string) ([]domain.SimInstance, error) {
	var sims []domain.SimInstance
	err := s.db.WithContext(ctx).
		Where("zone = ?", zone).
		Order("created_at ASC").
		Find(&sims).Error
	if err != nil {
		return nil, fmt.Errorf("list sim instances: %w", err)
	}
	return sims, nil
}

func (s *Store) DeleteSimInstance(ctx context.Context, providerInstanceID, zone string) error {
	err := s.db.WithContext(ctx).
		Where("provider_instance_id = ? AND zone = ?", providerInstanceID, zone).
		Delete(&domain.SimInstance{}).Error
	if err != nil {
		return fmt.Errorf("delete sim instance %s: %w", providerInstanceID, err)
	}
	return nil
}
