package telemetry

import (
	"sync"
	"time"
)

// HealthTracker aggregates liveness heartbeats from long-running loops into
// a single /healthz verdict. A component registers once, then calls Beat on
// every tick; a beat older than its max age degrades the report.
type HealthTracker struct {
	mu    sync.Mutex
	beats map[string]*Heartbeat
	now   func() time.Time
}

// Heartbeat is one registered component's liveness signal.
type Heartbeat struct {
	tracker *HealthTracker
	name    string
	maxAge  time.Duration

	mu      sync.Mutex
	last    time.Time
	stopped bool
}

// HealthComponent is one component's entry in a HealthReport.
type HealthComponent struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	LastBeat string `json:"last_beat,omitempty"`
}

// HealthReport is the JSON body served on /healthz.
type HealthReport struct {
	Status     string            `json:"status"`
	Components []HealthComponent `json:"components,omitempty"`
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		beats: make(map[string]*Heartbeat),
		now:   time.Now,
	}
}

// Register adds a component. maxAge is how stale a beat may be before the
// component counts as unhealthy; registering starts with a fresh beat so a
// slow first tick does not immediately degrade the report.
func (t *HealthTracker) Register(name string, maxAge time.Duration) *Heartbeat {
	beat := &Heartbeat{tracker: t, name: name, maxAge: maxAge, last: t.now()}
	t.mu.Lock()
	t.beats[name] = beat
	t.mu.Unlock()
	return beat
}

// Report summarizes all registered components. Status is "ok" only when
// every non-stopped component has beaten within its max age.
func (t *HealthTracker) Report() HealthReport {
	t.mu.Lock()
	beats := make([]*Heartbeat, 0, len(t.beats))
	for _, b := range t.beats {
		beats = append(beats, b)
	}
	now := t.now()
	t.mu.Unlock()

	report := HealthReport{Status: "ok"}
	for _, b := range beats {
		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			continue
		}
		healthy := b.maxAge <= 0 || now.Sub(b.last) <= b.maxAge
		component := HealthComponent{
			Name:     b.name,
			Healthy:  healthy,
			LastBeat: b.last.UTC().Format(time.RFC3339),
		}
		b.mu.Unlock()

		if !healthy {
			report.Status = "degraded"
		}
		report.Components = append(report.Components, component)
	}
	return report
}

// Beat marks the component alive now.
func (b *Heartbeat) Beat() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.last = b.tracker.now()
	b.mu.Unlock()
}

// Stop removes the component from health evaluation, for clean shutdown.
func (b *Heartbeat) Stop() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}
