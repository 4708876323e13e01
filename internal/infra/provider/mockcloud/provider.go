package mockcloud

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Store is the slice of the datastore the simulator needs. Simulated rows
// live next to the real tables so a restarted orchestrator still sees the
// VMs this provider "created".
type Store interface {
	CreateSimInstance(ctx context.Context, sim *domain.SimInstance) error
	GetSimInstance(ctx context.Context, providerInstanceID, zone string) (*domain.SimInstance, error)
	SaveSimInstance(ctx context.Context, sim *domain.SimInstance) error
	ListSimInstances(ctx context.Context, zone string) ([]domain.SimInstance, error)
	DeleteSimInstance(ctx context.Context, providerInstanceID, zone string) error
}

// Options configures the simulator.
type Options struct {
	Logger *zap.Logger
	// Clock overrides the clock, for tests driving the terminate delay.
	Clock func() time.Time
	// TerminateDelay is how long a terminated instance stays visible,
	// imitating a vendor's asynchronous teardown.
	TerminateDelay time.Duration
}

// Provider simulates a cloud vendor against the shared datastore: no
// network, no cost, fully deterministic. Instances advance
// created → running → terminating → terminated; termination completes only
// after TerminateDelay has passed, the way a real vendor's does.
type Provider struct {
	domain.BaseProvider

	store  Store
	logger *zap.Logger
	clock  func() time.Time
	delay  time.Duration
}

func New(store Store, opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	delay := opts.TerminateDelay
	if delay <= 0 {
		delay = domain.DefaultMockTerminateDelay
	}
	return &Provider{
		store:  store,
		logger: logger.Named("mockcloud"),
		clock:  clock,
		delay:  delay,
	}
}

func (p *Provider) Code() string { return domain.MockProviderCode }

// CreateInstance validates the request against the simulated catalog and
// persists the new row. Unknown zones and instance types are rejected
// synchronously; a real vendor would answer 400 the same way.
func (p *Provider) CreateInstance(ctx context.Context, req domain.CreateInstanceRequest) (string, error) {
	items, err := p.FetchCatalog(ctx, req.Zone)
	if err != nil {
		return "", err
	}
	offered := false
	for _, item := range items {
		if item.ID == req.InstanceType && item.Available {
			offered = true
			break
		}
	}
	if !offered {
		return "", domain.E(domain.CodeMockValidation, "mockcloud.CreateInstance",
			fmt.Sprintf("instance type %q not offered in zone %q", req.InstanceType, req.Zone), nil)
	}

	id := "sim-" + strings.Split(uuid.NewString(), "-")[0]
	sim := &domain.SimInstance{
		ProviderInstanceID: id,
		Zone:               req.Zone,
		InstanceType:       req.InstanceType,
		Status:             domain.SimStatusCreated,
		IPAddress:          simIP(id),
	}
	if err := p.store.CreateSimInstance(ctx, sim); err != nil {
		return "", err
	}
	p.logger.Info("simulated instance created",
		telemetry.ProviderInstanceIDField(id),
		telemetry.ZoneField(req.Zone),
	)
	return id, nil
}

// StartInstance moves a created row to running. Starting a running row is a
// no-op; starting a terminated one fails like a vendor 404.
func (p *Provider) StartInstance(ctx context.Context, providerInstanceID, zone string) error {
	sim, err := p.load(ctx, providerInstanceID, zone)
	if err != nil {
		return err
	}
	switch sim.Status {
	case domain.SimStatusCreated:
		sim.Status = domain.SimStatusRunning
		return p.store.SaveSimInstance(ctx, sim)
	case domain.SimStatusRunning:
		return nil
	default:
		return domain.E(domain.CodeNotFound, "mockcloud.StartInstance",
			fmt.Sprintf("instance %s is %s", providerInstanceID, sim.Status), nil)
	}
}

// TerminateInstance begins the asynchronous teardown. The row stays visible
// until the delay passes; repeated calls and calls for unknown instances
// report true, termination being already done from the caller's view.
func (p *Provider) TerminateInstance(ctx context.Context, providerInstanceID, zone string) (bool, error) {
	sim, err := p.load(ctx, providerInstanceID, zone)
	if errors.Is(err, domain.ErrInstanceNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	switch sim.Status {
	case domain.SimStatusTerminating, domain.SimStatusTerminated:
		return true, nil
	}
	deleteAfter := p.clock().Add(p.delay)
	sim.Status = domain.SimStatusTerminating
	sim.DeleteAfter = &deleteAfter
	if err := p.store.SaveSimInstance(ctx, sim); err != nil {
		return false, err
	}
	p.logger.Info("simulated instance terminating",
		telemetry.ProviderInstanceIDField(providerInstanceID),
		zap.Time("deleteAfter", deleteAfter),
	)
	return true, nil
}

// GetInstanceIP reports the address once the instance runs, empty before.
func (p *Provider) GetInstanceIP(ctx context.Context, providerInstanceID, zone string) (string, error) {
	sim, err := p.load(ctx, providerInstanceID, zone)
	if err != nil {
		return "", err
	}
	if sim.Status != domain.SimStatusRunning {
		return "", nil
	}
	return sim.IPAddress, nil
}

func (p *Provider) CheckInstanceExists(ctx context.Context, providerInstanceID, zone string) (bool, error) {
	sim, err := p.load(ctx, providerInstanceID, zone)
	if errors.Is(err, domain.ErrInstanceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sim.Status != domain.SimStatusTerminated, nil
}

// FetchCatalog offers exactly one instance type in exactly one zone.
func (p *Provider) FetchCatalog(_ context.Context, zone string) ([]domain.CatalogItem, error) {
	if zone != domain.MockZone {
		return nil, domain.E(domain.CodeMockValidation, "mockcloud.FetchCatalog",
			fmt.Sprintf("unknown zone %q (only %q exists)", zone, domain.MockZone), nil)
	}
	return []domain.CatalogItem{
		{
			ID:           domain.MockInstanceType,
			Zone:         domain.MockZone,
			Name:         "Simulated single-GPU node",
			GPUModel:     "SIM-GPU-80G",
			GPUCount:     1,
			CPUCores:     16,
			MemoryGB:     64,
			DiskGB:       200,
			PricePerHour: 0,
			Currency:     "EUR",
			Available:    true,
		},
	}, nil
}

func (p *Provider) ListInstances(ctx context.Context, zone string) ([]domain.DiscoveredInstance, error) {
	sims, err := p.store.ListSimInstances(ctx, zone)
	if err != nil {
		return nil, err
	}
	var out []domain.DiscoveredInstance
	for i := range sims {
		sim := p.advance(ctx, &sims[i])
		if sim.Status == domain.SimStatusTerminated {
			p.purge(ctx, sim)
			continue
		}
		out = append(out, domain.DiscoveredInstance{
			ProviderInstanceID: sim.ProviderInstanceID,
			Zone:               sim.Zone,
			Name:               sim.InstanceType,
			Status:             string(sim.Status),
			IPAddress:          sim.IPAddress,
			CreatedAt:          sim.CreatedAt,
		})
	}
	return out, nil
}

func (p *Provider) load(ctx context.Context, providerInstanceID, zone string) (*domain.SimInstance, error) {
	sim, err := p.store.GetSimInstance(ctx, providerInstanceID, zone)
	if err != nil {
		return nil, err
	}
	return p.advance(ctx, sim), nil
}

// advance applies the pending deterministic progression: a terminating row
// whose delete_after has passed becomes terminated. Lazy, on read, so the
// simulator needs no background task.
func (p *Provider) advance(ctx context.Context, sim *domain.SimInstance) *domain.SimInstance {
	if sim.Status == domain.SimStatusTerminating &&
		sim.DeleteAfter != nil && !p.clock().Before(*sim.DeleteAfter) {
		sim.Status = domain.SimStatusTerminated
		if err := p.store.SaveSimInstance(ctx, sim); err != nil {
			p.logger.Warn("advance failed",
				telemetry.ProviderInstanceIDField(sim.ProviderInstanceID),
				zap.Error(err),
			)
		}
	}
	return sim
}

// purge drops a terminated row once it has outlived the retention window,
// the way vendors expire terminated instances from their listings. The
// tombstone stays for one extra delay so lookups answer "terminated"
// before turning into not-found.
func (p *Provider) purge(ctx context.Context, sim *domain.SimInstance) {
	if sim.DeleteAfter == nil || p.clock().Before(sim.DeleteAfter.Add(p.delay)) {
		return
	}
	if err := p.store.DeleteSimInstance(ctx, sim.ProviderInstanceID, sim.Zone); err != nil {
		p.logger.Warn("purge failed",
			telemetry.ProviderInstanceIDField(sim.ProviderInstanceID),
			zap.Error(err),
		)
	}
}

// simIP derives a stable private address from the instance id.
func simIP(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	sum := h.Sum32()
	return fmt.Sprintf("10.42.%d.%d", (sum>>8)&0xff, sum&0xff)
}

var _ domain.CloudProvider = (*Provider)(nil)
