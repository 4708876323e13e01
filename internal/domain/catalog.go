package domain

import "time"

// CatalogItem is one instance type a provider offers in a zone, as returned
// by CloudProvider.FetchCatalog. Persisting synced catalogs is the control
// plane's concern; the orchestrator only produces and consumes them.
type CatalogItem struct {
	ID           string  `json:"id"`
	Zone         string  `json:"zone"`
	Name         string  `json:"name"`
	GPUModel     string  `json:"gpu_model,omitempty"`
	GPUCount     int     `json:"gpu_count"`
	CPUCores     int     `json:"cpu_cores"`
	MemoryGB     int     `json:"memory_gb"`
	DiskGB       int     `json:"disk_gb"`
	PricePerHour float64 `json:"price_per_hour"`
	Currency     string  `json:"currency,omitempty"`
	Available    bool    `json:"available"`
}

// DiscoveredInstance is a provider-side VM found by ListInstances, used to
// compare provider ground truth against our rows.
type DiscoveredInstance struct {
	ProviderInstanceID string    `json:"provider_instance_id"`
	Zone               string    `json:"zone"`
	Name               string    `json:"name,omitempty"`
	Status             string    `json:"status"`
	IPAddress          string    `json:"ip_address,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// AttachedVolume describes a block volume bound to a provider instance.
type AttachedVolume struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	SizeGB     int    `json:"size_gb"`
	Type       string `json:"type,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
}

// VolumeSpec requests a volume at instance-create time.
type VolumeSpec struct {
	Name   string `json:"name,omitempty"`
	SizeGB int    `json:"size_gb"`
	Type   string `json:"type,omitempty"`
}

// CatalogSink receives synced catalogs. The durable catalog store lives
// outside the orchestrator; the SYNC_CATALOG command hands results to this
// collaborator and moves on.
type CatalogSink interface {
	StoreCatalog(providerID, zone string, items []CatalogItem) error
}

// ModelOffering is a model catalog entry the router resolves request model
// identifiers against. Name is the public reference clients send; ModelID is
// the canonical identifier workers advertise once the model is loaded.
// Offerings with an organization id are private to that organization.
type ModelOffering struct {
	ID             string    `gorm:"column:id;primaryKey;size:36"`
	Name           string    `gorm:"column:name;size:128;not null;index:idx_offerings_name"`
	ModelID        string    `gorm:"column:model_id;size:256;not null"`
	OrganizationID string    `gorm:"column:organization_id;size:36;index:idx_offerings_org"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (ModelOffering) TableName() string { return "model_offerings" }
