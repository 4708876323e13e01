package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// GetSetting reads one datastore-scoped configuration value. The bool
// reports existence; an absent key is not an error.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var setting domain.Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return setting.Value, true, nil
}

// SetSetting upserts a configuration value. The control plane owns these in
// production; the orchestrator writes them for tests and operator tooling.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	setting := domain.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

var _ domain.SettingsReader = (*Store)(nil)
