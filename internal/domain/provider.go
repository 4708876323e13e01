package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported is returned by optional CloudProvider capabilities a
// variant does not implement. Callers treat it as "skip", not as a failure.
var ErrNotSupported = errors.New("operation not supported by provider")

// CreateInstanceRequest carries everything a provider needs to create a VM.
// CloudInit and Volumes are optional; providers that reject unknown optional
// fields get one retry without them.
type CreateInstanceRequest struct {
	Zone         string
	InstanceType string
	Image        string
	Hostname     string
	CloudInit    string
	SSHKeyIDs    []string
	Volumes      []VolumeSpec
	Diskless     bool
}

// CloudProvider is the capability surface the orchestrator drives VMs
// through. Implementations must be safe for concurrent use; every method
// takes a context and respects its deadline. Optional capabilities
// (StopInstance, volume lifecycle, diskless-boot helpers) default to
// ErrNotSupported / no-op via BaseProvider.
type CloudProvider interface {
	// Code identifies the logical provider this variant serves.
	Code() string

	CreateInstance(ctx context.Context, req CreateInstanceRequest) (providerInstanceID string, err error)
	StartInstance(ctx context.Context, providerInstanceID, zone string) error
	StopInstance(ctx context.Context, providerInstanceID, zone string) error

	// TerminateInstance returns true when the provider accepted (or had
	// already performed) the termination.
	TerminateInstance(ctx context.Context, providerInstanceID, zone string) (bool, error)

	// GetInstanceIP returns the public address, or "" while unassigned.
	GetInstanceIP(ctx context.Context, providerInstanceID, zone string) (string, error)
	CheckInstanceExists(ctx context.Context, providerInstanceID, zone string) (bool, error)

	FetchCatalog(ctx context.Context, zone string) ([]CatalogItem, error)
	ListInstances(ctx context.Context, zone string) ([]DiscoveredInstance, error)

	CreateVolume(ctx context.Context, zone string, spec VolumeSpec) (string, error)
	AttachVolume(ctx context.Context, zone, volumeID, providerInstanceID string) error
	DeleteVolume(ctx context.Context, zone, volumeID string) error
	ResizeVolume(ctx context.Context, zone, volumeID string, sizeGB int) error

	// Diskless-boot helpers for providers that need a boot-volume swap
	// around StartInstance.
	PrepareDisklessBoot(ctx context.Context, providerInstanceID, zone string) error
	FinishDisklessBoot(ctx context.Context, providerInstanceID, zone string) error
}

// BaseProvider supplies the optional-capability defaults. Provider variants
// embed it and override what their vendor actually supports.
type BaseProvider struct{}

func (BaseProvider) StopInstance(context.Context, string, string) error { return ErrNotSupported }

func (BaseProvider) CreateVolume(context.Context, string, VolumeSpec) (string, error) {
	return "", ErrNotSupported
}

func (BaseProvider) AttachVolume(context.Context, string, string, string) error { return nil }

func (BaseProvider) DeleteVolume(context.Context, string, string) error { return nil }

func (BaseProvider) ResizeVolume(context.Context, string, string, int) error { return ErrNotSupported }

func (BaseProvider) PrepareDisklessBoot(context.Context, string, string) error { return nil }

func (BaseProvider) FinishDisklessBoot(context.Context, string, string) error { return nil }

// SimStatus tracks a simulated VM through the same coarse lifecycle a real
// vendor exposes.
type SimStatus string

const (
	SimStatusCreated     SimStatus = "created"
	SimStatusRunning     SimStatus = "running"
	SimStatusTerminating SimStatus = "terminating"
	SimStatusTerminated  SimStatus = "terminated"
)

// SimInstance is the mock provider's persisted VM row, keyed by
// (provider_instance_id, zone). DeleteAfter makes termination asynchronous
// the way a real vendor's is.
type SimInstance struct {
	ProviderInstanceID string     `gorm:"column:provider_instance_id;primaryKey;size:64"`
	Zone               string     `gorm:"column:zone;primaryKey;size:64"`
	InstanceType       string     `gorm:"column:instance_type;size:64;not null"`
	Status             SimStatus  `gorm:"column:status;size:24;not null"`
	IPAddress          string     `gorm:"column:ip_address;size:64"`
	DeleteAfter        *time.Time `gorm:"column:delete_after"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null"`
}

func (SimInstance) TableName() string { return "sim_instances" }
