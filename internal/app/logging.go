package app

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/config"
)

// BuildLogger constructs the daemon logger from the logging section of the
// loaded configuration.
func BuildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, domain.E(domain.CodeConfiguration, "app.BuildLogger",
			fmt.Sprintf("unknown log level %q", cfg.Level), err)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, domain.E(domain.CodeConfiguration, "app.BuildLogger", "build logger", err)
	}
	return logger, nil
}
