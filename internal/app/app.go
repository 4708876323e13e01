// Package app assembles the orchestrator daemon: configuration, datastore,
// provider manager, the job loops, the command subscriber and the two HTTP
// surfaces. cmd/orchestratord is a thin cobra shell over this package.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/commands"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/config"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/loops"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/probe"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/provider"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/router"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/telemetry"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
}

type ValidateConfig struct {
	ConfigPath string
}

type MigrateConfig struct {
	ConfigPath string
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		logger: logger.Named("app"),
	}
}

// Serve runs the daemon until ctx is cancelled. The bootstrap logger from
// main only covers config loading; everything after runs on the logger the
// configuration asks for.
func (a *App) Serve(ctx context.Context, cfg ServeConfig) error {
	bootCfg, err := config.Load(cfg.ConfigPath, a.logger)
	if err != nil {
		return err
	}
	logger, err := BuildLogger(bootCfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	manager, err := config.NewManager(cfg.ConfigPath, logger)
	if err != nil {
		return err
	}
	manager.Watch(ctx)
	runCfg := manager.Config()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(registry)
	health := telemetry.NewHealthTracker()

	shutdownTracing, err := telemetry.SetupTracing(telemetry.TracingOptions{
		Enabled:     runCfg.Tracing.Enabled,
		ServiceName: "orchestratord",
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	st, err := store.Open(runCfg.Datastore.Driver, runCfg.Datastore.DSN, store.Options{
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("datastore close failed", zap.Error(err))
		}
	}()
	if runCfg.Datastore.Driver == store.DriverSQLite {
		// sqlite files appear on first boot; postgres schema rollout goes
		// through the migrate subcommand.
		if err := st.AutoMigrate(); err != nil {
			return err
		}
	}

	providers := provider.NewManager(provider.ManagerOptions{
		Settings: st,
		SimStore: st,
		Credentials: provider.CredentialConfig{
			Env:            config.CollectProviderEnv(os.Environ()),
			SecretFile:     runCfg.Providers.SecretFile,
			PassphraseFile: runCfg.Providers.PassphraseFile,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	workerProbe := probe.New(probe.Options{
		Logger:  logger,
		Metrics: metrics,
		Port:    runCfg.Bootstrap.WorkerPort,
	})

	audit := st.Audit()
	provisioner := loops.NewProvisioner(loops.ProvisionerOptions{
		Store:     st,
		Providers: providers,
		Audit:     audit,
		Logger:    logger,
		Metrics:   metrics,
		Tunables:  manager.Tunables,
		Bootstrap: loops.BootstrapConfig{
			Image:       runCfg.Bootstrap.Image,
			WorkerPort:  runCfg.Bootstrap.WorkerPort,
			CallbackURL: runCfg.Bootstrap.CallbackURL,
			SSHKeyIDs:   runCfg.Bootstrap.SSHKeyIDs,
			Diskless:    runCfg.Bootstrap.Diskless,
		},
	})
	healthChecker := loops.NewHealthChecker(loops.HealthCheckerOptions{
		Store:     st,
		Providers: providers,
		Probe:     workerProbe,
		Logger:    logger,
		Metrics:   metrics,
		Tunables:  manager.Tunables,
	})
	terminator := loops.NewTerminator(loops.TerminatorOptions{
		Store:     st,
		Providers: providers,
		Audit:     audit,
		Logger:    logger,
		Metrics:   metrics,
		Tunables:  manager.Tunables,
	})
	watchdog := loops.NewWatchdog(loops.WatchdogOptions{
		Store:     st,
		Providers: providers,
		Probe:     workerProbe,
		Logger:    logger,
		Metrics:   metrics,
		Tunables:  manager.Tunables,
	})
	recovery := loops.NewRecovery(loops.RecoveryOptions{
		Store:      st,
		Terminator: terminator,
		Logger:     logger,
		Metrics:    metrics,
		Tunables:   manager.Tunables,
	})
	reconciler := loops.NewReconciler(loops.ReconcilerOptions{
		Store:     st,
		Providers: providers,
		Audit:     audit,
		Logger:    logger,
		Metrics:   metrics,
	})

	runner := loops.NewRunner(loops.RunnerOptions{
		Logger:   logger,
		Metrics:  metrics,
		Health:   health,
		Tunables: manager.Tunables,
	})
	runner.Add(loops.LoopProvisioner, domain.Tunables.ProvisionerInterval, provisioner.Tick)
	runner.Add(loops.LoopHealth, domain.Tunables.HealthInterval, healthChecker.Tick)
	runner.Add(loops.LoopTerminator, domain.Tunables.TerminatorInterval, terminator.Tick)
	runner.Add(loops.LoopWatchdog, domain.Tunables.WatchdogInterval, watchdog.Tick)
	runner.Add(loops.LoopRecovery, domain.Tunables.RecoveryInterval, recovery.Tick)

	if url := runCfg.NATS.URL; url != "" {
		conn, err := commands.Connect(url, "orchestratord", logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		dispatcher := commands.NewDispatcher(st, reconciler, commands.DispatcherOptions{
			Logger:  logger,
			Metrics: metrics,
		})
		subscriber := commands.NewSubscriber(conn, dispatcher, commands.SubscriberOptions{
			Subject: runCfg.NATS.Subject,
			Queue:   runCfg.NATS.Queue,
			Logger:  logger,
		})
		if err := subscriber.Start(ctx); err != nil {
			return err
		}
		defer subscriber.Stop()
	}

	selector := router.NewSelector(st, router.SelectorOptions{
		Logger:   logger,
		Metrics:  metrics,
		Tunables: manager.Tunables,
	})
	selection := router.NewHTTPHandler(selector, router.HTTPHandlerOptions{Logger: logger})

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- telemetry.StartHTTPServer(serveCtx, telemetry.HTTPServerOptions{
			Addr:          runCfg.HTTP.ObservabilityAddr,
			EnableMetrics: true,
			EnableHealthz: true,
			Health:        health,
			Registry:      registry,
		}, logger)
	}()
	go func() {
		errCh <- serveSelectionAPI(serveCtx, runCfg.HTTP.SelectionAddr, selection, logger)
	}()

	runner.Start(serveCtx)
	logger.Info("orchestrator started",
		zap.String("datastore", runCfg.Datastore.Driver),
		zap.String("selection_addr", runCfg.HTTP.SelectionAddr),
		zap.String("observability_addr", runCfg.HTTP.ObservabilityAddr),
		zap.Bool("commands", runCfg.NATS.URL != ""),
	)

	// Both servers return nil after a graceful ctx-driven shutdown; a
	// listen failure on either side tears the whole daemon down.
	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	runner.Stop()
	return firstErr
}

// serveSelectionAPI serves the worker-selection endpoints until ctx is
// cancelled.
func serveSelectionAPI(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if addr == "" {
		addr = domain.DefaultSelectionListenAddress
	}
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("selection api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("selection api failed to start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("selection api shutdown error", zap.Error(err))
			return err
		}
		logger.Info("selection api stopped")
		return nil
	}
}
