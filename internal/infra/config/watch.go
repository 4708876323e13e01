package config

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

const reloadDebounce = 200 * time.Millisecond

// Manager holds the current configuration snapshot and re-reads the file
// when it changes. Only the tunables move at runtime; connection-shaped
// settings keep their boot values until a restart.
type Manager struct {
	logger *zap.Logger
	path   string

	current atomic.Value

	reloadMu  sync.Mutex
	watchOnce sync.Once
}

// NewManager loads the initial snapshot. An empty path runs on defaults
// and environment overrides, with nothing to watch.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := Load(path, logger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		logger: logger.Named("config"),
		path:   path,
	}
	m.current.Store(cfg)
	return m, nil
}

// Config returns the current snapshot.
func (m *Manager) Config() Config {
	return m.current.Load().(Config)
}

// Tunables returns the current runtime knobs. Loops and the router call
// this on every pass, so a reloaded value applies on the next tick.
func (m *Manager) Tunables() domain.Tunables {
	return m.Config().Tunables
}

// Watch starts the file watcher. Safe to call more than once; only the
// first call starts anything.
func (m *Manager) Watch(ctx context.Context) {
	if m.path == "" {
		return
	}
	m.watchOnce.Do(func() {
		go m.runWatcher(ctx)
	})
}

func (m *Manager) reload() error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	next, err := Load(m.path, m.logger)
	if err != nil {
		return err
	}

	prev := m.Config()
	if next.Tunables == prev.Tunables {
		return nil
	}

	merged := prev
	merged.Tunables = next.Tunables
	m.current.Store(merged)
	m.logger.Info("runtime tunables reloaded",
		zap.Int("provisioner_interval_seconds", merged.Tunables.ProvisionerIntervalSeconds),
		zap.Int("claim_batch_size", merged.Tunables.ClaimBatchSize),
		zap.Int("health_failure_threshold", merged.Tunables.HealthFailureThreshold),
		zap.Int("staleness_window_seconds", merged.Tunables.StalenessWindowSeconds),
	)
	return nil
}

func (m *Manager) runWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("config watcher failed", zap.Error(err))
		return
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and configmap mounts
	// replace the file instead of writing it in place.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		m.logger.Warn("config watcher add failed", zap.String("path", m.path), zap.Error(err))
		return
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-watcher.Errors:
			if err != nil {
				m.logger.Warn("config watcher error", zap.Error(err))
			}
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(reloadDebounce)
		case <-timerChan(timer):
			timer = nil
			if err := m.reload(); err != nil {
				m.logger.Warn("config reload failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
