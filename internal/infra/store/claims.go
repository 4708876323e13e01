package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// claim runs the single atomic claim statement: update the lease on a
// bounded batch of eligible rows and return the claimed batch. On postgres
// the sub-select locks with SKIP LOCKED so concurrent replicas slide past
// each other; on sqlite the serialized writer gives the same exclusivity.
// Either way a row whose lease is fresh is invisible to every claimant.
func (s *Store) claim(ctx context.Context, loop string, batch int, build func(*gorm.DB) *gorm.DB, set map[string]any) ([]domain.Instance, error) {
	if batch <= 0 {
		batch = domain.DefaultClaimBatchSize
	}

	sub := build(s.db.Model(&domain.Instance{}).Select("id")).
		Order("created_at ASC").
		Limit(batch)
	if s.skipLocked {
		sub = sub.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	if set == nil {
		set = map[string]any{}
	}
	set["last_reconciliation"] = s.now().UTC()

	var claimed []domain.Instance
	res := s.db.WithContext(ctx).Model(&claimed).
		Clauses(clause.Returning{}).
		Where("id IN (?)", sub).
		Updates(set)
	if res.Error != nil {
		return nil, fmt.Errorf("claim %s: %w", loop, res.Error)
	}
	s.metrics.ObserveClaim(loop, len(claimed))
	return claimed, nil
}

func staleLease(db *gorm.DB, cutoff time.Time) *gorm.DB {
	return db.Where("last_reconciliation IS NULL OR last_reconciliation <= ?", cutoff)
}

// ClaimProvisioning claims provisioning rows the command channel dropped:
// old enough that the PROVISION nudge should long have arrived, no provider
// instance yet, still under the retry budget. The claim itself burns one
// retry so a permanently failing row cannot be claimed forever.
func (s *Store) ClaimProvisioning(ctx context.Context, batch int, minAge, lease time.Duration, maxRetries int) ([]domain.Instance, error) {
	cutoff := s.leaseCutoff(lease)
	bornBefore := s.now().UTC().Add(-minAge)
	return s.claim(ctx, "provisioner", batch, func(db *gorm.DB) *gorm.DB {
		db = db.Where("status = ?", domain.StatusProvisioning).
			Where("provider_instance_id = '' OR provider_instance_id IS NULL").
			Where("created_at <= ?", bornBefore).
			Where("retry_count < ?", maxRetries)
		return staleLease(db, cutoff)
	}, map[string]any{
		"retry_count": gorm.Expr("retry_count + 1"),
	})
}

// ClaimBootPhase claims rows between provider creation and readiness for
// health checking.
func (s *Store) ClaimBootPhase(ctx context.Context, batch int, lease time.Duration) ([]domain.Instance, error) {
	cutoff := s.leaseCutoff(lease)
	return s.claim(ctx, "health", batch, func(db *gorm.DB) *gorm.DB {
		db = db.Where("status IN ?", domain.BootPhaseStatuses)
		return staleLease(db, cutoff)
	}, nil)
}

// ClaimTerminating claims terminating rows that have a provider instance to
// tear down.
func (s *Store) ClaimTerminating(ctx context.Context, batch int, lease time.Duration) ([]domain.Instance, error) {
	cutoff := s.leaseCutoff(lease)
	return s.claim(ctx, "terminator", batch, func(db *gorm.DB) *gorm.DB {
		db = db.Where("status = ?", domain.StatusTerminating).
			Where("provider_instance_id <> ''")
		return staleLease(db, cutoff)
	}, nil)
}

// ClaimReady claims ready rows for the watchdog's provider ground-truth
// check. The lease stamp doubles as the row's reconciliation freshness.
func (s *Store) ClaimReady(ctx context.Context, batch int, lease time.Duration) ([]domain.Instance, error) {
	cutoff := s.leaseCutoff(lease)
	return s.claim(ctx, "watchdog", batch, func(db *gorm.DB) *gorm.DB {
		db = db.Where("status = ?", domain.StatusReady)
		return staleLease(db, cutoff)
	}, nil)
}

// ClaimStuckTerminating claims terminating rows nobody has touched for the
// idle window, the recovery loop's safety net behind the terminator.
func (s *Store) ClaimStuckTerminating(ctx context.Context, batch int, idle time.Duration) ([]domain.Instance, error) {
	cutoff := s.leaseCutoff(idle)
	return s.claim(ctx, "recovery", batch, func(db *gorm.DB) *gorm.DB {
		db = db.Where("status = ?", domain.StatusTerminating)
		return staleLease(db, cutoff)
	}, nil)
}

// ClaimStuckBooting claims boot-phase rows older than maxAge whose lease
// has been idle past leaseIdle: boots that will never finish and need to be
// declared failed.
func (s *Store) ClaimStuckBooting(ctx context.Context, batch int, maxAge, leaseIdle time.Duration) ([]domain.Instance, error) {
	cutoff := s.leaseCutoff(leaseIdle)
	bornBefore := s.now().UTC().Add(-maxAge)
	return s.claim(ctx, "recovery", batch, func(db *gorm.DB) *gorm.DB {
		db = db.Where("status IN ?", domain.BootPhaseStatuses).
			Where("created_at <= ?", bornBefore)
		return staleLease(db, cutoff)
	}, nil)
}

// ClearLease releases a row early so the next tick can retry without
// waiting out the lease window. Used after provider errors.
func (s *Store) ClearLease(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&domain.Instance{}).
		Where("id = ?", id).
		Update("last_reconciliation", nil).Error
	if err != nil {
		return fmt.Errorf("clear lease %s: %w", id, err)
	}
	return nil
}
