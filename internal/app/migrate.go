package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/config"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
)

// Migrate applies the schema to the configured datastore and exits. Serve
// migrates sqlite files on boot by itself; postgres deployments run this
// before rolling the daemon.
func (a *App) Migrate(ctx context.Context, cfg MigrateConfig) error {
	loaded, err := config.Load(cfg.ConfigPath, a.logger)
	if err != nil {
		return err
	}
	logger, err := BuildLogger(loaded.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(loaded.Datastore.Driver, loaded.Datastore.DSN, store.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := st.Ping(ctx); err != nil {
		return err
	}
	if err := st.AutoMigrate(); err != nil {
		return err
	}

	logger.Info("schema migrated", zap.String("datastore", loaded.Datastore.Driver))
	return nil
}
