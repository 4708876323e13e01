// Package router picks the worker instance that should serve a routed
// inference request. The ranking itself is a pure function over candidate
// rows; the surrounding Selector resolves the model reference, loads
// candidates from the store and applies the staleness window.
package router

import (
	"context"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

// Selection is the worker chosen for one request.
type Selection struct {
	InstanceID string `json:"instance_id"`
	IPAddress  string `json:"ip_address"`
	ModelID    string `json:"model_id"`
	Sticky     bool   `json:"sticky"`
}

type Selector struct {
	store    *store.Store
	logger   *zap.Logger
	metrics  domain.Metrics
	tunables func() domain.Tunables
	now      func() time.Time
}

type SelectorOptions struct {
	Logger   *zap.Logger
	Metrics  domain.Metrics
	Tunables func() domain.Tunables
	Now      func() time.Time
}

func NewSelector(st *store.Store, opts SelectorOptions) *Selector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	tunables := opts.Tunables
	if tunables == nil {
		tunables = domain.DefaultTunables
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Selector{
		store:    st,
		logger:   logger.Named("router"),
		metrics:  metrics,
		tunables: tunables,
		now:      now,
	}
}

// ResolveModel maps a caller-supplied model reference to a catalog offering.
func (s *Selector) ResolveModel(ctx context.Context, ref string, caller domain.Caller) (*domain.ModelOffering, error) {
	return s.store.ResolveOffering(ctx, ref, caller)
}

// Select returns the worker that should receive the next request for the
// referenced model. An empty reference matches any ready worker. A non-empty
// sticky key maps to a stable member of the candidate set so conversation
// state on the worker stays warm.
func (s *Selector) Select(ctx context.Context, modelRef, stickyKey string, caller domain.Caller) (*Selection, error) {
	start := time.Now()

	canonical := ""
	if modelRef != "" {
		offering, err := s.store.ResolveOffering(ctx, modelRef, caller)
		if err != nil {
			s.observeSelection(domain.SelectionOutcomeError, start)
			s.logger.Debug("model resolution failed",
				telemetry.EventField(telemetry.EventSelectionMiss),
				telemetry.ModelIDField(modelRef),
				zap.Error(err),
			)
			return nil, err
		}
		canonical = offering.ModelID
	}

	candidates, err := s.store.ReadyWorkers(ctx, canonical)
	if err != nil {
		s.observeSelection(domain.SelectionOutcomeError, start)
		return nil, err
	}

	window := s.stalenessWindow(ctx)
	chosen := pickWorker(candidates, stickyKey, window, s.now().UTC())
	if chosen == nil {
		s.observeSelection(domain.SelectionOutcomeNoWorker, start)
		s.logger.Debug("no worker available",
			telemetry.EventField(telemetry.EventSelectionMiss),
			telemetry.ModelIDField(canonical),
			zap.Int("candidates", len(candidates)),
			zap.Duration("staleness_window", window),
		)
		return nil, domain.ErrNoWorkerAvailable
	}

	outcome := domain.SelectionOutcomeHit
	if stickyKey != "" {
		outcome = domain.SelectionOutcomeSticky
	}
	s.observeSelection(outcome, start)

	model := chosen.WorkerModelID
	if model == "" {
		model = canonical
	}
	s.logger.Debug("worker selected",
		telemetry.EventField(telemetry.EventSelection),
		telemetry.InstanceIDField(chosen.ID),
		telemetry.ModelIDField(model),
		zap.String("outcome", string(outcome)),
		telemetry.DurationField(time.Since(start)),
	)
	return &Selection{
		InstanceID: chosen.ID,
		IPAddress:  chosen.IPAddress,
		ModelID:    model,
		Sticky:     stickyKey != "",
	}, nil
}

// stalenessWindow resolves the freshness cutoff, preferring the datastore
// setting over the configured value so operators can retune a live system
// without a restart.
func (s *Selector) stalenessWindow(ctx context.Context) time.Duration {
	raw, ok, err := s.store.GetSetting(ctx, domain.SettingStalenessWindowSeconds)
	if err == nil && ok {
		if seconds, parseErr := strconv.Atoi(strings.TrimSpace(raw)); parseErr == nil {
			return domain.ClampStalenessWindow(seconds)
		}
		s.logger.Warn("ignoring malformed staleness window setting", zap.String("value", raw))
	}
	return s.tunables().StalenessWindow()
}

func (s *Selector) observeSelection(outcome domain.SelectionOutcome, start time.Time) {
	s.metrics.ObserveSelection(outcome, time.Since(start))
}

// pickWorker filters candidates to those heard from within the staleness
// window, ranks them and keeps the strongest DefaultSelectionCandidates.
// Without a sticky key the least loaded candidate wins; with one, the hash
// of the key lands on a stable member of the set.
func pickWorker(candidates []domain.Instance, stickyKey string, window time.Duration, now time.Time) *domain.Instance {
	cutoff := now.Add(-window)
	fresh := make([]domain.Instance, 0, len(candidates))
	for _, candidate := range candidates {
		if !candidate.Freshness().Before(cutoff) {
			fresh = append(fresh, candidate)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.Slice(fresh, func(i, j int) bool { return strongerCandidate(fresh[i], fresh[j]) })
	if len(fresh) > domain.DefaultSelectionCandidates {
		fresh = fresh[:domain.DefaultSelectionCandidates]
	}

	if stickyKey == "" {
		return &fresh[0]
	}

	// Hash over the id-sorted set, not the ranked one, so the mapping only
	// moves when membership changes.
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
	h := fnv.New32a()
	_, _ = h.Write([]byte(stickyKey))
	return &fresh[int(h.Sum32())%len(fresh)]
}

// strongerCandidate orders by reported queue depth ascending with unreported
// depths last, then by freshness and creation time, newest first. Instance id
// breaks the remaining ties so the order is total.
func strongerCandidate(a, b domain.Instance) bool {
	switch {
	case a.WorkerQueueDepth != nil && b.WorkerQueueDepth == nil:
		return true
	case a.WorkerQueueDepth == nil && b.WorkerQueueDepth != nil:
		return false
	case a.WorkerQueueDepth != nil && *a.WorkerQueueDepth != *b.WorkerQueueDepth:
		return *a.WorkerQueueDepth < *b.WorkerQueueDepth
	}
	if fa, fb := a.Freshness(), b.Freshness(); !fa.Equal(fb) {
		return fa.After(fb)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
