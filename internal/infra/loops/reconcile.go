package loops

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Reconciler runs the on-demand sweeps behind the RECONCILE and
// SYNC_CATALOG commands. Reconcile compares our rows against provider
// ground truth and reports drift through the audit sink and the instance
// gauges; it never mutates rows itself, the loops own the healing.
type Reconciler struct {
	store     *store.Store
	providers Providers
	sink      domain.CatalogSink
	audit     domain.AuditSink
	logger    *zap.Logger
	metrics   domain.Metrics
}

type ReconcilerOptions struct {
	Store     *store.Store
	Providers Providers
	Sink      domain.CatalogSink
	Audit     domain.AuditSink
	Logger    *zap.Logger
	Metrics   domain.Metrics
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	audit := opts.Audit
	if audit == nil {
		audit = domain.NopAuditSink{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = &LoggingCatalogSink{Logger: logger}
	}
	return &Reconciler{
		store:     opts.Store,
		providers: opts.Providers,
		sink:      sink,
		audit:     audit,
		logger:    logger.Named("reconciler"),
		metrics:   metrics,
	}
}

// Reconcile sweeps every provider/zone pair with live rows, comparing the
// provider's instance listing against ours in both directions. Findings
// are logged and audited; the watchdog and terminator do the actual
// convergence on their own schedule.
func (r *Reconciler) Reconcile(ctx context.Context) (err error) {
	zones, err := r.store.LiveProviderZones(ctx)
	if err != nil {
		return err
	}

	auditID := r.audit.Begin(ctx, "reconcile", "reconciler", "", map[string]string{
		"zones": strconv.Itoa(len(zones)),
	})
	defer func() { r.audit.Complete(ctx, auditID, err) }()

	rows, err := r.store.ListInstances(ctx)
	if err != nil {
		return err
	}

	for _, pz := range zones {
		r.reconcileZone(ctx, pz, rows)
	}

	counts, err := r.store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for providerID, byStatus := range counts {
		for status, n := range byStatus {
			r.metrics.SetInstanceCount(providerID, status, n)
		}
	}
	return nil
}

func (r *Reconciler) reconcileZone(ctx context.Context, pz store.ProviderZone, rows []domain.Instance) {
	provider, err := r.providers.Provider(ctx, pz.ProviderID)
	if err != nil {
		r.logger.Warn("provider unavailable",
			telemetry.ProviderField(pz.ProviderID),
			telemetry.ZoneField(pz.ZoneID),
			zap.Error(err),
		)
		return
	}

	discovered, err := provider.ListInstances(ctx, pz.ZoneID)
	if err != nil {
		r.logger.Warn("instance listing failed",
			telemetry.EventField(telemetry.EventProviderError),
			telemetry.ProviderField(pz.ProviderID),
			telemetry.ZoneField(pz.ZoneID),
			zap.Error(err),
		)
		return
	}

	present := make(map[string]struct{}, len(discovered))
	for _, d := range discovered {
		present[d.ProviderInstanceID] = struct{}{}
	}

	var missing, untracked int
	for _, row := range rows {
		if row.ProviderID != pz.ProviderID || row.ZoneID != pz.ZoneID {
			continue
		}
		if !row.Status.Live() || row.ProviderInstanceID == "" {
			continue
		}
		if _, ok := present[row.ProviderInstanceID]; !ok {
			missing++
			r.logger.Warn("row has no backing provider instance",
				telemetry.InstanceIDField(row.ID),
				telemetry.ProviderInstanceIDField(row.ProviderInstanceID),
				telemetry.StatusField(row.Status),
				telemetry.ProviderField(pz.ProviderID),
				telemetry.ZoneField(pz.ZoneID),
			)
		}
	}

	for _, d := range discovered {
		row, err := r.store.FindByProviderInstanceID(ctx, pz.ProviderID, d.ProviderInstanceID)
		switch {
		case errors.Is(err, domain.ErrInstanceNotFound):
			untracked++
			r.logger.Warn("provider instance has no row",
				telemetry.ProviderInstanceIDField(d.ProviderInstanceID),
				telemetry.ProviderField(pz.ProviderID),
				telemetry.ZoneField(pz.ZoneID),
				zap.String("provider_status", d.Status),
			)
		case err != nil:
			r.logger.Warn("row lookup failed", telemetry.ProviderInstanceIDField(d.ProviderInstanceID), zap.Error(err))
		case row.Status.Terminal():
			untracked++
			r.logger.Warn("terminated row still present at provider",
				telemetry.InstanceIDField(row.ID),
				telemetry.ProviderInstanceIDField(d.ProviderInstanceID),
				telemetry.StatusField(row.Status),
				telemetry.ProviderField(pz.ProviderID),
			)
		}
	}

	r.logger.Info("zone reconciled",
		telemetry.ProviderField(pz.ProviderID),
		telemetry.ZoneField(pz.ZoneID),
		zap.Int("provider_instances", len(discovered)),
		zap.Int("missing", missing),
		zap.Int("untracked", untracked),
	)
}

// SyncCatalog fetches the instance-type catalog and hands it to the
// catalog sink. With an explicit provider and zone only that pair is
// synced; otherwise every provider/zone pair with live rows is.
func (r *Reconciler) SyncCatalog(ctx context.Context, providerID, zoneID string) error {
	pairs := []store.ProviderZone{{ProviderID: providerID, ZoneID: zoneID}}
	if providerID == "" {
		zones, err := r.store.LiveProviderZones(ctx)
		if err != nil {
			return err
		}
		pairs = zones
	}

	var firstErr error
	for _, pz := range pairs {
		if err := r.syncOne(ctx, pz); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Reconciler) syncOne(ctx context.Context, pz store.ProviderZone) (err error) {
	auditID := r.audit.Begin(ctx, "catalog_sync", "reconciler", "", map[string]string{
		"provider": pz.ProviderID,
		"zone":     pz.ZoneID,
	})
	defer func() { r.audit.Complete(ctx, auditID, err) }()

	provider, err := r.providers.Provider(ctx, pz.ProviderID)
	if err != nil {
		return err
	}
	items, err := provider.FetchCatalog(ctx, pz.ZoneID)
	if err != nil {
		r.logger.Warn("catalog fetch failed",
			telemetry.EventField(telemetry.EventProviderError),
			telemetry.ProviderField(pz.ProviderID),
			telemetry.ZoneField(pz.ZoneID),
			zap.Error(err),
		)
		return err
	}
	if err = r.sink.StoreCatalog(pz.ProviderID, pz.ZoneID, items); err != nil {
		return err
	}

	r.logger.Info("catalog synced",
		telemetry.EventField(telemetry.EventCatalogSynced),
		telemetry.ProviderField(pz.ProviderID),
		telemetry.ZoneField(pz.ZoneID),
		zap.Int("items", len(items)),
	)
	return nil
}

// LoggingCatalogSink is the default catalog sink: the durable catalog
// store lives outside the orchestrator, so without a wired sink we only
// report what a sync would have stored.
type LoggingCatalogSink struct {
	Logger *zap.Logger
}

func (s *LoggingCatalogSink) StoreCatalog(providerID, zone string, items []domain.CatalogItem) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	available := 0
	for _, item := range items {
		if item.Available {
			available++
		}
	}
	logger.Info("catalog received",
		telemetry.ProviderField(providerID),
		telemetry.ZoneField(zone),
		zap.Int("items", len(items)),
		zap.Int("available", available),
	)
	return nil
}

var _ domain.CatalogSink = (*LoggingCatalogSink)(nil)
