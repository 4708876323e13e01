package domain

import "context"

// WorkerHealth is the body of a worker's health endpoint: its own view of
// readiness, the model it serves and how much work is queued.
type WorkerHealth struct {
	Status     string `json:"status"`
	Phase      string `json:"phase,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
	QueueDepth *int   `json:"queue_depth,omitempty"`
}

// WorkerProbe talks HTTP to an inference worker. Health drives the boot
// phase transitions; Models backs the watchdog's telemetry backfill when a
// ready worker never reported which model it loaded.
type WorkerProbe interface {
	Health(ctx context.Context, ip string) (WorkerHealth, error)
	Models(ctx context.Context, ip string) ([]string, error)
}

// Caller identifies the authenticated principal behind a routing request,
// used when resolving organization-private model offerings.
type Caller struct {
	UserID         string
	OrganizationID string
}
