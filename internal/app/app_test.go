package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/config"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
)

func TestBuildLogger_AppliesLevelAndFormat(t *testing.T) {
	logger, err := BuildLogger(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = BuildLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestBuildLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := BuildLogger(config.LoggingConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
}

func TestMigrate_AppliesSchema(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "orchestrator.db")
	path := writeAppConfig(t, dir, dsn)

	a := New(zap.NewNop())
	require.NoError(t, a.Migrate(context.Background(), MigrateConfig{ConfigPath: path}))

	st, err := store.Open(store.DriverSQLite, dsn, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	inst := &domain.Instance{
		ProviderID:     domain.MockProviderCode,
		ZoneID:         domain.MockZone,
		InstanceTypeID: domain.MockInstanceType,
	}
	require.NoError(t, st.CreateInstance(context.Background(), inst))
	require.NotEmpty(t, inst.ID)
}

func TestValidateConfig_AcceptsMockOnlyDeployment(t *testing.T) {
	dir := t.TempDir()
	path := writeAppConfig(t, dir, filepath.Join(dir, "validate.db"))

	a := New(zap.NewNop())
	require.NoError(t, a.ValidateConfig(context.Background(), ValidateConfig{ConfigPath: path}))
}

func TestValidateConfig_RejectsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("datastore:\n  driver: oracle\n  dsn: x\n"), 0o600))

	a := New(zap.NewNop())
	err := a.ValidateConfig(context.Background(), ValidateConfig{ConfigPath: path})
	require.Error(t, err)
	require.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
}

func writeAppConfig(t *testing.T, dir, dsn string) string {
	t.Helper()
	path := filepath.Join(dir, "orchestrator.yaml")
	content := "datastore:\n  driver: sqlite\n  dsn: " + dsn + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
