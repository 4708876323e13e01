package loops

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// cloudInitTemplate bootstraps the inference worker on first boot. The
// worker agent reads its identity and model assignment from the env file
// and reports back to the orchestrator's callback URL.
const cloudInitTemplate = `#cloud-config
write_files:
  - path: /etc/inventiv/worker.env
    permissions: "0600"
    content: |
      INSTANCE_ID={{.InstanceID}}
      MODEL_ID={{.ModelID}}
      WORKER_PORT={{.WorkerPort}}
      CALLBACK_URL={{.CallbackURL}}
runcmd:
  - ["systemctl", "enable", "--now", "inventiv-worker"]
`

var cloudInitTmpl = template.Must(template.New("cloud-init").Parse(cloudInitTemplate))

// BootstrapConfig describes how freshly created VMs are brought up.
type BootstrapConfig struct {
	Image       string
	WorkerPort  int
	CallbackURL string
	SSHKeyIDs   []string
	Diskless    bool
}

// Provisioner creates the provider VM behind a provisioning row. The
// PROVISION command handler calls Provision directly; the requeue tick
// re-drives rows whose command delivery was lost. Claiming a row burns one
// retry, so a row that keeps failing runs out of budget instead of looping
// forever.
type Provisioner struct {
	store     *store.Store
	providers Providers
	audit     domain.AuditSink
	logger    *zap.Logger
	metrics   domain.Metrics
	tunables  func() domain.Tunables
	bootstrap BootstrapConfig
}

type ProvisionerOptions struct {
	Store     *store.Store
	Providers Providers
	Audit     domain.AuditSink
	Logger    *zap.Logger
	Metrics   domain.Metrics
	Tunables  func() domain.Tunables
	Bootstrap BootstrapConfig
}

func NewProvisioner(opts ProvisionerOptions) *Provisioner {
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
	tunables := opts.Tunables
	if tunables == nil {
		tunables = domain.DefaultTunables
	}
	bootstrap := opts.Bootstrap
	if bootstrap.WorkerPort <= 0 {
		bootstrap.WorkerPort = domain.DefaultWorkerPort
	}
	return &Provisioner{
		store:     opts.Store,
		providers: opts.Providers,
		audit:     audit,
		logger:    logger.Named("provisioner"),
		metrics:   metrics,
		tunables:  tunables,
		bootstrap: bootstrap,
	}
}

// Tick claims provisioning rows the command channel dropped and re-drives
// them through Provision.
func (p *Provisioner) Tick(ctx context.Context) error {
	t := p.tunables()
	rows, err := p.store.ClaimProvisioning(ctx, t.ClaimBatchSize,
		domain.DefaultProvisionMinAgeSeconds*time.Second,
		domain.DefaultProvisionerLeaseSeconds*time.Second,
		domain.DefaultMaxProvisionRetries,
	)
	if err != nil {
		return err
	}
	eachInstance(rows, func(inst domain.Instance) {
		if err := p.Provision(ctx, inst); err != nil {
			p.logger.Warn("provisioning attempt failed",
				telemetry.EventField(telemetry.EventProvisionFailure),
				telemetry.InstanceIDField(inst.ID),
				telemetry.ProviderField(inst.ProviderID),
				zap.Int("retry", inst.RetryCount),
				zap.Error(err),
			)
		}
	})
	return nil
}

// Provision runs the create-or-continue procedure for one claimed row:
// create the VM, start it, then assign its provider instance id together
// with the move to booting. The assignment is last so a row carrying a
// provider_instance_id always refers to a started VM. If the row left
// provisioning while we worked (a concurrent terminate), the fresh VM is
// torn down again.
func (p *Provisioner) Provision(ctx context.Context, inst domain.Instance) (err error) {
	provider, err := p.providers.Provider(ctx, inst.ProviderID)
	if err != nil {
		return err
	}

	auditID := p.audit.Begin(ctx, "instance_provision", "provisioner", inst.ID, map[string]string{
		"provider":      inst.ProviderID,
		"zone":          inst.ZoneID,
		"instance_type": inst.InstanceTypeID,
		"retry":         strconv.Itoa(inst.RetryCount),
	})
	defer func() { p.audit.Complete(ctx, auditID, err) }()

	cloudInit, err := p.renderCloudInit(inst)
	if err != nil {
		return err
	}

	p.logger.Info("creating provider instance",
		telemetry.EventField(telemetry.EventProvisionAttempt),
		telemetry.InstanceIDField(inst.ID),
		telemetry.ProviderField(inst.ProviderID),
		telemetry.ZoneField(inst.ZoneID),
		zap.Int("retry", inst.RetryCount),
	)

	providerInstanceID, err := provider.CreateInstance(ctx, domain.CreateInstanceRequest{
		Zone:         inst.ZoneID,
		InstanceType: inst.InstanceTypeID,
		Image:        p.bootstrap.Image,
		Hostname:     workerHostname(inst.ID),
		CloudInit:    cloudInit,
		SSHKeyIDs:    p.bootstrap.SSHKeyIDs,
		Diskless:     p.bootstrap.Diskless,
	})
	if err != nil {
		p.releaseForRetry(ctx, inst.ID)
		return err
	}

	if p.bootstrap.Diskless {
		if err = provider.PrepareDisklessBoot(ctx, providerInstanceID, inst.ZoneID); err != nil {
			p.discard(ctx, provider, providerInstanceID, inst)
			return err
		}
	}
	if err = provider.StartInstance(ctx, providerInstanceID, inst.ZoneID); err != nil {
		p.discard(ctx, provider, providerInstanceID, inst)
		return err
	}
	if p.bootstrap.Diskless {
		if err = provider.FinishDisklessBoot(ctx, providerInstanceID, inst.ZoneID); err != nil {
			p.discard(ctx, provider, providerInstanceID, inst)
			return err
		}
	}

	applied, err := p.store.ProvisioningToBooting(ctx, inst.ID, providerInstanceID)
	if err != nil {
		return err
	}
	if !applied {
		// The row was terminated under us; the VM we just started has no
		// owner anymore.
		p.discard(ctx, provider, providerInstanceID, inst)
		return nil
	}

	p.logger.Info("instance booting",
		telemetry.InstanceIDField(inst.ID),
		telemetry.ProviderInstanceIDField(providerInstanceID),
		telemetry.ProviderField(inst.ProviderID),
		telemetry.ZoneField(inst.ZoneID),
	)
	return nil
}

func (p *Provisioner) renderCloudInit(inst domain.Instance) (string, error) {
	var buf bytes.Buffer
	err := cloudInitTmpl.Execute(&buf, struct {
		InstanceID  string
		ModelID     string
		WorkerPort  int
		CallbackURL string
	}{
		InstanceID:  inst.ID,
		ModelID:     inst.ModelID,
		WorkerPort:  p.bootstrap.WorkerPort,
		CallbackURL: p.bootstrap.CallbackURL,
	})
	if err != nil {
		return "", domain.E(domain.CodeInternal, "render cloud-init", "template execution failed", err)
	}
	return buf.String(), nil
}

// releaseForRetry clears the lease after a provider error so the next tick
// retries without waiting out the lease window.
func (p *Provisioner) releaseForRetry(ctx context.Context, id string) {
	if err := p.store.ClearLease(ctx, id); err != nil {
		p.logger.Warn("clear lease failed", telemetry.InstanceIDField(id), zap.Error(err))
	}
}

// discard tears down a VM whose row we could not move to booting. Best
// effort: a leaked VM is also caught by a later reconcile sweep.
func (p *Provisioner) discard(ctx context.Context, provider domain.CloudProvider, providerInstanceID string, inst domain.Instance) {
	if _, err := provider.TerminateInstance(ctx, providerInstanceID, inst.ZoneID); err != nil {
		p.logger.Warn("discarding unassigned instance failed",
			telemetry.EventField(telemetry.EventProviderError),
			telemetry.InstanceIDField(inst.ID),
			telemetry.ProviderInstanceIDField(providerInstanceID),
			zap.Error(err),
		)
	}
	p.releaseForRetry(ctx, inst.ID)
}

func workerHostname(instanceID string) string {
	short, _, _ := strings.Cut(instanceID, "-")
	return "worker-" + short
}
