package tensorrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// DefaultBaseURL is the production TensorRack API endpoint.
const DefaultBaseURL = "https://api.tensorrack.cloud"

// Credentials authenticates against the TensorRack API.
type Credentials struct {
	ProjectID string
	SecretKey string
}

// Options configures the client.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	// BaseURL overrides the API endpoint, for tests and staging.
	BaseURL string
	// ConnectTimeout bounds dialing, RequestTimeout the whole exchange. A
	// stalled vendor must never hang a loop past these.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Client drives the TensorRack vendor REST API: zone-scoped paths, bearer
// auth, JSON bodies. All failures surface as provider-transient errors
// carrying the response body, so operators see what the vendor actually
// said.
type Client struct {
	domain.BaseProvider

	creds   Credentials
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	metrics domain.Metrics
}

func New(creds Credentials, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = domain.DefaultProviderConnectTimeoutSeconds * time.Second
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = domain.DefaultProviderRequestTimeoutSeconds * time.Second
	}
	return &Client{
		creds:   creds,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
		logger:  logger.Named("tensorrack"),
		metrics: metrics,
	}
}

func (c *Client) Code() string { return "tensorrack" }

type createInstanceBody struct {
	Name      string           `json:"name"`
	ProductID string           `json:"product_id"`
	Image     string           `json:"image"`
	CloudInit string           `json:"cloud_init,omitempty"`
	SSHKeyIDs []string         `json:"ssh_key_ids,omitempty"`
	Volumes   []volumeSpecBody `json:"volumes,omitempty"`
	Diskless  bool             `json:"diskless,omitempty"`
}

type volumeSpecBody struct {
	Name   string `json:"name,omitempty"`
	SizeGB int    `json:"size_gb"`
	Type   string `json:"type,omitempty"`
}

type instanceBody struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	PublicIP *struct {
		Address string `json:"address"`
	} `json:"public_ip"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInstance provisions a VM. When the vendor rejects the request with
// a 4xx naming an optional field (older API revisions do not know
// cloud_init or volumes), the call is retried once without that field.
func (c *Client) CreateInstance(ctx context.Context, req domain.CreateInstanceRequest) (string, error) {
	body := createInstanceBody{
		Name:      req.Hostname,
		ProductID: req.InstanceType,
		Image:     req.Image,
		CloudInit: req.CloudInit,
		SSHKeyIDs: req.SSHKeyIDs,
		Diskless:  req.Diskless,
	}
	for _, v := range req.Volumes {
		body.Volumes = append(body.Volumes, volumeSpecBody(v))
	}

	var out struct {
		Instance instanceBody `json:"instance"`
	}
	err := c.call(ctx, "create_instance", http.MethodPost,
		fmt.Sprintf("/v1/zones/%s/instances", req.Zone), body, &out)
	if retryField := rejectedOptionalField(err); retryField != "" {
		c.logger.Warn("vendor rejected optional field, retrying without it",
			zap.String("field", retryField),
			telemetry.ZoneField(req.Zone),
		)
		switch retryField {
		case "cloud_init":
			body.CloudInit = ""
		case "volumes":
			body.Volumes = nil
		}
		err = c.call(ctx, "create_instance", http.MethodPost,
			fmt.Sprintf("/v1/zones/%s/instances", req.Zone), body, &out)
	}
	if err != nil {
		return "", err
	}
	if out.Instance.ID == "" {
		return "", domain.E(domain.CodeProviderTransient, "tensorrack.CreateInstance",
			"vendor returned no instance id", nil)
	}
	return out.Instance.ID, nil
}

func (c *Client) StartInstance(ctx context.Context, providerInstanceID, zone string) error {
	return c.action(ctx, "start_instance", zone, providerInstanceID, "poweron")
}

func (c *Client) StopInstance(ctx context.Context, providerInstanceID, zone string) error {
	return c.action(ctx, "stop_instance", zone, providerInstanceID, "poweroff")
}

func (c *Client) action(ctx context.Context, op, zone, id, action string) error {
	body := map[string]string{"action": action}
	return c.call(ctx, op, http.MethodPost,
		fmt.Sprintf("/v1/zones/%s/instances/%s/action", zone, id), body, nil)
}

// TerminateInstance deletes the VM. A 404 means it is already gone, which
// is the outcome the caller wanted.
func (c *Client) TerminateInstance(ctx context.Context, providerInstanceID, zone string) (bool, error) {
	err := c.call(ctx, "terminate_instance", http.MethodDelete,
		fmt.Sprintf("/v1/zones/%s/instances/%s", zone, providerInstanceID), nil, nil)
	if statusOf(err) == http.StatusNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) GetInstanceIP(ctx context.Context, providerInstanceID, zone string) (string, error) {
	inst, err := c.getInstance(ctx, providerInstanceID, zone)
	if err != nil {
		return "", err
	}
	if inst.PublicIP == nil {
		return "", nil
	}
	return inst.PublicIP.Address, nil
}

func (c *Client) CheckInstanceExists(ctx context.Context, providerInstanceID, zone string) (bool, error) {
	_, err := c.getInstance(ctx, providerInstanceID, zone)
	if statusOf(err) == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) getInstance(ctx context.Context, id, zone string) (*instanceBody, error) {
	var out struct {
		Instance instanceBody `json:"instance"`
	}
	err := c.call(ctx, "get_instance", http.MethodGet,
		fmt.Sprintf("/v1/zones/%s/instances/%s", zone, id), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out.Instance, nil
}

type productBody struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	GPUModel    string  `json:"gpu_model"`
	GPUCount    int     `json:"gpu_count"`
	VCPUs       int     `json:"vcpus"`
	MemoryGB    int     `json:"memory_gb"`
	DiskGB      int     `json:"disk_gb"`
	HourlyPrice float64 `json:"hourly_price"`
	Currency    string  `json:"currency"`
	Stock       string  `json:"stock"`
}

func (c *Client) FetchCatalog(ctx context.Context, zone string) ([]domain.CatalogItem, error) {
	var out struct {
		Products []productBody `json:"products"`
	}
	err := c.call(ctx, "fetch_catalog", http.MethodGet,
		fmt.Sprintf("/v1/zones/%s/products", zone), nil, &out)
	if err != nil {
		return nil, err
	}
	items := make([]domain.CatalogItem, 0, len(out.Products))
	for _, p := range out.Products {
		items = append(items, domain.CatalogItem{
			ID:           p.ID,
			Zone:         zone,
			Name:         p.Name,
			GPUModel:     p.GPUModel,
			GPUCount:     p.GPUCount,
			CPUCores:     p.VCPUs,
			MemoryGB:     p.MemoryGB,
			DiskGB:       p.DiskGB,
			PricePerHour: p.HourlyPrice,
			Currency:     p.Currency,
			Available:    p.Stock == "available",
		})
	}
	return items, nil
}

func (c *Client) ListInstances(ctx context.Context, zone string) ([]domain.DiscoveredInstance, error) {
	var out struct {
		Instances []instanceBody `json:"instances"`
	}
	err := c.call(ctx, "list_instances", http.MethodGet,
		fmt.Sprintf("/v1/zones/%s/instances", zone), nil, &out)
	if err != nil {
		return nil, err
	}
	discovered := make([]domain.DiscoveredInstance, 0, len(out.Instances))
	for _, inst := range out.Instances {
		d := domain.DiscoveredInstance{
			ProviderInstanceID: inst.ID,
			Zone:               zone,
			Name:               inst.Name,
			Status:             inst.State,
			CreatedAt:          inst.CreatedAt,
		}
		if inst.PublicIP != nil {
			d.IPAddress = inst.PublicIP.Address
		}
		discovered = append(discovered, d)
	}
	return discovered, nil
}

func (c *Client) CreateVolume(ctx context.Context, zone string, spec domain.VolumeSpec) (string, error) {
	var out struct {
		Volume struct {
			ID string `json:"id"`
		} `json:"volume"`
	}
	err := c.call(ctx, "create_volume", http.MethodPost,
		fmt.Sprintf("/v1/zones/%s/volumes", zone), volumeSpecBody(spec), &out)
	if err != nil {
		return "", err
	}
	return out.Volume.ID, nil
}

func (c *Client) AttachVolume(ctx context.Context, zone, volumeID, providerInstanceID string) error {
	body := map[string]string{"instance_id": providerInstanceID}
	return c.call(ctx, "attach_volume", http.MethodPost,
		fmt.Sprintf("/v1/zones/%s/volumes/%s/attach", zone, volumeID), body, nil)
}

func (c *Client) DeleteVolume(ctx context.Context, zone, volumeID string) error {
	err := c.call(ctx, "delete_volume", http.MethodDelete,
		fmt.Sprintf("/v1/zones/%s/volumes/%s", zone, volumeID), nil, nil)
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) ResizeVolume(ctx context.Context, zone, volumeID string, sizeGB int) error {
	body := map[string]int{"size_gb": sizeGB}
	return c.call(ctx, "resize_volume", http.MethodPatch,
		fmt.Sprintf("/v1/zones/%s/volumes/%s", zone, volumeID), body, nil)
}

// call runs one vendor exchange: marshal, authenticate, bound by the
// client timeouts, decode into out when given. Non-2xx answers become
// *apiError values wrapped as provider-transient with the body preserved.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "tensorrack."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("url.path", path),
	)

	err := c.do(ctx, method, path, body, out)
	c.metrics.ObserveProviderCall(c.Code(), op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("vendor call failed",
			telemetry.EventField(telemetry.EventProviderError),
			zap.String("op", op),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.SecretKey)
	req.Header.Set("X-Project-ID", c.creds.ProjectID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Transient("tensorrack "+method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Transient("tensorrack "+method+" "+path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Transient("tensorrack "+method+" "+path, &apiError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(raw)),
		})
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return domain.Transient("tensorrack "+method+" "+path, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// apiError carries the vendor's status and verbatim body for diagnosis.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vendor answered %d: %s", e.Status, e.Body)
}

// statusOf extracts the vendor HTTP status from err, 0 when err carries
// none.
func statusOf(err error) int {
	var vendor *apiError
	if errors.As(err, &vendor) {
		return vendor.Status
	}
	return 0
}

// rejectedOptionalField reports which optional create field a 4xx schema
// rejection named, empty when the error is anything else.
func rejectedOptionalField(err error) string {
	var vendor *apiError
	if !errors.As(err, &vendor) {
		return ""
	}
	if vendor.Status < 400 || vendor.Status > 499 {
		return ""
	}
	for _, field := range []string{"cloud_init", "volumes"} {
		if strings.Contains(vendor.Body, field) {
			return field
		}
	}
	return ""
}

var _ domain.CloudProvider = (*Client)(nil)
