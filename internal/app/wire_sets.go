//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/commands"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/loops"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/probe"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/provider"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/router"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

var TelemetrySet = wire.NewSet(
	telemetry.NewHealthTracker,
	telemetry.NewPrometheusMetrics,
	wire.Bind(new(domain.Metrics), new(*telemetry.PrometheusMetrics)),
)

var ProviderSet = wire.NewSet(
	provider.NewManager,
	probe.New,
	wire.Bind(new(domain.WorkerProbe), new(*probe.HTTPProbe)),
	wire.Bind(new(loops.Providers), new(*provider.Manager)),
)

var LoopSet = wire.NewSet(
	loops.NewRunner,
	loops.NewProvisioner,
	loops.NewHealthChecker,
	loops.NewTerminator,
	loops.NewWatchdog,
	loops.NewRecovery,
	loops.NewReconciler,
)

var CommandSet = wire.NewSet(
	commands.NewDispatcher,
	commands.NewSubscriber,
	wire.Bind(new(commands.Reconciler), new(*loops.Reconciler)),
)

var RouterSet = wire.NewSet(
	router.NewSelector,
	router.NewHTTPHandler,
)

var AppSet = wire.NewSet(
	TelemetrySet,
	ProviderSet,
	LoopSet,
	CommandSet,
	RouterSet,
	New,
)
