package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/provider/mockcloud"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/provider/tensorrack"
)

// TensorRackCode is the logical code of the real vendor variant.
const TensorRackCode = "tensorrack"

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Settings    domain.SettingsReader
	SimStore    mockcloud.Store
	Credentials CredentialConfig
	Logger      *zap.Logger
	Metrics     domain.Metrics
	Clock       func() time.Time
	// MockTerminateDelay overrides the simulator's teardown delay.
	MockTerminateDelay time.Duration
}

// Manager resolves a logical provider code to a built CloudProvider.
// Selection is a closed set, not plugin loading: the TensorRack client and
// the mock simulator are the variants that exist. Credentials are
// re-resolved on every call so a rotated secret takes effect without a
// restart; the built client is reused while they are unchanged.
type Manager struct {
	resolver credentialResolver
	simStore mockcloud.Store
	logger   *zap.Logger
	metrics  domain.Metrics
	clock    func() time.Time
	delay    time.Duration

	mu    sync.Mutex
	cache map[string]builtProvider
}

type builtProvider struct {
	provider    domain.CloudProvider
	fingerprint string
}

func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		resolver: credentialResolver{settings: opts.Settings, cfg: opts.Credentials},
		simStore: opts.SimStore,
		logger:   logger.Named("provider"),
		metrics:  metrics,
		clock:    clock,
		delay:    opts.MockTerminateDelay,
		cache:    make(map[string]builtProvider),
	}
}

// Provider returns the variant serving code, building it on first use. A
// configuration problem (unknown code, missing credential) is fatal to that
// provider only; callers skip the affected rows and move on.
func (m *Manager) Provider(ctx context.Context, code string) (domain.CloudProvider, error) {
	switch code {
	case domain.MockProviderCode:
		return m.mock(), nil
	case TensorRackCode:
		return m.tensorrack(ctx)
	default:
		return nil, domain.E(domain.CodeConfiguration, "provider.Manager",
			fmt.Sprintf("unknown provider code %q", code), nil)
	}
}

func (m *Manager) mock() domain.CloudProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if built, ok := m.cache[domain.MockProviderCode]; ok {
		return built.provider
	}
	p := mockcloud.New(m.simStore, mockcloud.Options{
		Logger:         m.logger,
		Clock:          m.clock,
		TerminateDelay: m.delay,
	})
	m.cache[domain.MockProviderCode] = builtProvider{provider: p}
	return p
}

func (m *Manager) tensorrack(ctx context.Context) (domain.CloudProvider, error) {
	projectID, err := m.resolver.resolve(ctx, TensorRackCode, FieldProjectID)
	if err != nil {
		return nil, err
	}
	secretKey, err := m.resolver.resolve(ctx, TensorRackCode, FieldSecretKey)
	if err != nil {
		return nil, err
	}
	baseURL, err := m.resolver.resolveOptional(ctx, TensorRackCode, FieldBaseURL)
	if err != nil {
		return nil, err
	}

	fingerprint := credentialFingerprint(projectID, secretKey, baseURL)
	m.mu.Lock()
	defer m.mu.Unlock()
	if built, ok := m.cache[TensorRackCode]; ok && built.fingerprint == fingerprint {
		return built.provider, nil
	}

	client := tensorrack.New(
		tensorrack.Credentials{ProjectID: projectID, SecretKey: secretKey},
		tensorrack.Options{
			Logger:  m.logger,
			Metrics: m.metrics,
			BaseURL: baseURL,
		},
	)
	m.cache[TensorRackCode] = builtProvider{provider: client, fingerprint: fingerprint}
	m.logger.Info("provider client built",
		zap.String("provider", TensorRackCode),
		zap.String("projectID", projectID),
	)
	return client, nil
}

func credentialFingerprint(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
