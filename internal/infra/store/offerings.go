package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// ResolveOffering maps a model reference from a routed request to a catalog
// offering. The reference is tried as an offering id (UUID), then as an exact
// offering name, then as organization-private "prefix/name" where the name
// after the first slash resolves within the caller's current organization.
func (s *Store) ResolveOffering(ctx context.Context, ref string, caller domain.Caller) (*domain.ModelOffering, error) {
	if _, err := uuid.Parse(ref); err == nil {
		offering, err := s.offeringByID(ctx, ref)
		if err == nil {
			if offering.OrganizationID != "" && offering.OrganizationID != caller.OrganizationID {
				return nil, domain.ErrOrganizationMismatch
			}
			return offering, nil
		}
		if !errors.Is(err, domain.ErrModelNotFound) {
			return nil, err
		}
		// A UUID-shaped reference that matches no id may still be a name.
	}

	offering, err := s.offeringByName(ctx, ref, caller.OrganizationID)
	if err == nil {
		return offering, nil
	}
	if !errors.Is(err, domain.ErrModelNotFound) {
		return nil, err
	}

	if i := strings.Index(ref, "/"); i > 0 && caller.OrganizationID != "" {
		return s.offeringByName(ctx, ref[i+1:], caller.OrganizationID)
	}
	return nil, domain.ErrModelNotFound
}

func (s *Store) offeringByID(ctx context.Context, id string) (*domain.ModelOffering, error) {
	var offering domain.ModelOffering
	err := s.db.WithContext(ctx).First(&offering, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("offering %s: %w", id, err)
	}
	return &offering, nil
}

// offeringByName matches shared offerings and the caller's own, preferring
// the caller's when both carry the same name.
func (s *Store) offeringByName(ctx context.Context, name, organizationID string) (*domain.ModelOffering, error) {
	var offerings []domain.ModelOffering
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Where("organization_id = ? OR organization_id = '' OR organization_id IS NULL", organizationID).
		Find(&offerings).Error
	if err != nil {
		return nil, fmt.Errorf("offering %q: %w", name, err)
	}
	if len(offerings) == 0 {
		return nil, domain.ErrModelNotFound
	}
	for i := range offerings {
		if organizationID != "" && offerings[i].OrganizationID == organizationID {
			return &offerings[i], nil
		}
	}
	return &offerings[0], nil
}

// SaveOffering upserts a catalog offering by id. The model catalog is owned
// by the control plane; this writer exists for seeding and tests.
func (s *Store) SaveOffering(ctx context.Context, offering *domain.ModelOffering) error {
	now := s.now().UTC()
	if offering.ID == "" {
		offering.ID = uuid.NewString()
	}
	if offering.CreatedAt.IsZero() {
		offering.CreatedAt = now
	}
	offering.UpdatedAt = now
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "model_id", "organization_id", "updated_at"}),
		}).
		Create(offering).Error
	if err != nil {
		return fmt.Errorf("save offering %s: %w", offering.ID, err)
	}
	return nil
}
