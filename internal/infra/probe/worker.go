package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// Options configures a WorkerProbe.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	// Port the worker serves on; every instance runs the same image.
	Port int
	// Timeout bounds one probe exchange.
	Timeout time.Duration
}

// HTTPProbe asks an inference worker about itself over its HTTP surface:
// the health endpoint during boot, the model-listing endpoint for telemetry
// backfill. Probes are cheap and frequent; failures are data, not errors to
// escalate.
type HTTPProbe struct {
	http    *http.Client
	logger  *zap.Logger
	metrics domain.Metrics
	port    int
}

func New(opts Options) *HTTPProbe {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	port := opts.Port
	if port <= 0 {
		port = domain.DefaultWorkerPort
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultProbeTimeoutSeconds * time.Second
	}
	return &HTTPProbe{
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("probe"),
		metrics: metrics,
		port:    port,
	}
}

// Health fetches the worker's own view of its boot progress.
func (p *HTTPProbe) Health(ctx context.Context, ip string) (domain.WorkerHealth, error) {
	var health domain.WorkerHealth
	err := p.get(ctx, ip, domain.DefaultWorkerHealthPath, &health)
	p.metrics.ObserveProbe("health", err)
	if err != nil {
		return domain.WorkerHealth{}, err
	}
	return health, nil
}

// Models lists the model identifiers the worker serves, in the OpenAI
// compatible shape inference servers expose.
func (p *HTTPProbe) Models(ctx context.Context, ip string) ([]string, error) {
	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := p.get(ctx, ip, domain.DefaultWorkerModelsPath, &payload)
	p.metrics.ObserveProbe("models", err)
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(payload.Data))
	for _, entry := range payload.Data {
		if entry.ID != "" {
			models = append(models, entry.ID)
		}
	}
	return models, nil
}

func (p *HTTPProbe) get(ctx context.Context, ip, path string, out any) error {
	url := "http://" + net.JoinHostPort(ip, strconv.Itoa(p.port)) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("probe %s: read: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: worker answered %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("probe %s: decode: %w", path, err)
	}
	return nil
}

var _ domain.WorkerProbe = (*HTTPProbe)(nil)
