package app

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/config"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/provider"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
)

// ValidateConfig checks the configuration, the datastore connection and the
// provider credential sources without calling any cloud API. Missing
// TensorRack credentials are a warning, not a failure: mock-only
// deployments are legitimate.
func (a *App) ValidateConfig(ctx context.Context, cfg ValidateConfig) error {
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
	if loaded.Datastore.Driver == store.DriverSQLite {
		if err := st.AutoMigrate(); err != nil {
			return err
		}
	}

	providers := provider.NewManager(provider.ManagerOptions{
		Settings: st,
		SimStore: st,
		Credentials: provider.CredentialConfig{
			Env:            config.CollectProviderEnv(os.Environ()),
			SecretFile:     loaded.Providers.SecretFile,
			PassphraseFile: loaded.Providers.PassphraseFile,
		},
		Logger: logger,
	})
	if _, err := providers.Provider(ctx, provider.TensorRackCode); err != nil {
		logger.Warn("tensorrack credentials not resolvable, provider unusable until configured", zap.Error(err))
	} else {
		logger.Info("tensorrack credentials resolved")
	}
	if _, err := providers.Provider(ctx, domain.MockProviderCode); err != nil {
		return err
	}

	if loaded.Bootstrap.Image == "" {
		logger.Warn("bootstrap.image is empty, real-provider provisioning has no boot image")
	}

	logger.Info("configuration validated",
		zap.String("config", cfg.ConfigPath),
		zap.String("datastore", loaded.Datastore.Driver),
	)
	return nil
}
