// Package config loads the orchestrator configuration: a YAML file with
// ${VAR} expansion, environment overrides under the INVENTIV_ prefix and
// defaults drawn from the domain constants. The Manager watches the file
// and republishes the runtime tunables when it changes.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

type Config struct {
	Datastore DatastoreConfig
	NATS      NATSConfig
	HTTP      HTTPConfig
	Bootstrap BootstrapConfig
	Providers ProvidersConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Tunables  domain.Tunables
}

type DatastoreConfig struct {
	// Driver is "postgres" for the shared deployment or "sqlite" for
	// local runs and tests.
	Driver string
	DSN    string
}

// NATSConfig wires the command channel. An empty URL disables it; the
// loops still converge on datastore state without commands.
type NATSConfig struct {
	URL     string
	Subject string
	Queue   string
}

type HTTPConfig struct {
	ObservabilityAddr string
	SelectionAddr     string
}

// BootstrapConfig describes how fresh instances boot into workers.
type BootstrapConfig struct {
	Image       string
	WorkerPort  int
	CallbackURL string
	SSHKeyIDs   []string
	Diskless    bool
}

type ProvidersConfig struct {
	SecretFile     string
	PassphraseFile string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled bool
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INVENTIV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("datastore.driver", "sqlite")
	v.SetDefault("datastore.dsn", "orchestrator.db")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", domain.DefaultCommandSubject)
	v.SetDefault("nats.queue", domain.DefaultCommandQueue)
	v.SetDefault("http.observability_addr", domain.DefaultObservabilityListenAddress)
	v.SetDefault("http.selection_addr", domain.DefaultSelectionListenAddress)
	v.SetDefault("bootstrap.image", "")
	v.SetDefault("bootstrap.worker_port", domain.DefaultWorkerPort)
	v.SetDefault("bootstrap.callback_url", "")
	v.SetDefault("bootstrap.diskless", false)
	v.SetDefault("providers.secret_file", "")
	v.SetDefault("providers.passphrase_file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("loops.provisioner_interval_seconds", domain.DefaultProvisionerIntervalSeconds)
	v.SetDefault("loops.health_interval_seconds", domain.DefaultHealthIntervalSeconds)
	v.SetDefault("loops.terminator_interval_seconds", domain.DefaultTerminatorIntervalSeconds)
	v.SetDefault("loops.watchdog_interval_seconds", domain.DefaultWatchdogIntervalSeconds)
	v.SetDefault("loops.recovery_interval_seconds", domain.DefaultRecoveryIntervalSeconds)
	v.SetDefault("loops.claim_batch_size", domain.DefaultClaimBatchSize)
	v.SetDefault("health.failure_threshold", domain.DefaultHealthFailureThreshold)
	v.SetDefault("router.staleness_window_seconds", domain.DefaultStalenessWindowSeconds)
}

type rawConfig struct {
	Datastore rawDatastore `mapstructure:"datastore"`
	NATS      rawNATS      `mapstructure:"nats"`
	HTTP      rawHTTP      `mapstructure:"http"`
	Bootstrap rawBootstrap `mapstructure:"bootstrap"`
	Providers rawProviders `mapstructure:"providers"`
	Logging   rawLogging   `mapstructure:"logging"`
	Tracing   rawTracing   `mapstructure:"tracing"`
	Loops     rawLoops     `mapstructure:"loops"`
	Health    rawHealth    `mapstructure:"health"`
	Router    rawRouter    `mapstructure:"router"`
}

type rawDatastore struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type rawNATS struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

type rawHTTP struct {
	ObservabilityAddr string `mapstructure:"observability_addr"`
	SelectionAddr     string `mapstructure:"selection_addr"`
}

type rawBootstrap struct {
	Image       string   `mapstructure:"image"`
	WorkerPort  int      `mapstructure:"worker_port"`
	CallbackURL string   `mapstructure:"callback_url"`
	SSHKeyIDs   []string `mapstructure:"ssh_key_ids"`
	Diskless    bool     `mapstructure:"diskless"`
}

type rawProviders struct {
	SecretFile     string `mapstructure:"secret_file"`
	PassphraseFile string `mapstructure:"passphrase_file"`
}

type rawLogging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type rawTracing struct {
	Enabled bool `mapstructure:"enabled"`
}

type rawLoops struct {
	ProvisionerIntervalSeconds int `mapstructure:"provisioner_interval_seconds"`
	HealthIntervalSeconds      int `mapstructure:"health_interval_seconds"`
	TerminatorIntervalSeconds  int `mapstructure:"terminator_interval_seconds"`
	WatchdogIntervalSeconds    int `mapstructure:"watchdog_interval_seconds"`
	RecoveryIntervalSeconds    int `mapstructure:"recovery_interval_seconds"`
	ClaimBatchSize             int `mapstructure:"claim_batch_size"`
}

type rawHealth struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
}

type rawRouter struct {
	StalenessWindowSeconds int `mapstructure:"staleness_window_seconds"`
}

// Load reads the configuration file at path, expands ${VAR} references,
// applies INVENTIV_* environment overrides and validates the result. An
// empty path yields defaults plus environment overrides.
func Load(path string, logger *zap.Logger) (Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("config")

	v := newConfigViper()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		expanded, missing, err := expandConfigEnv(data)
		if err != nil {
			return Config{}, err
		}
		if len(missing) > 0 {
			log.Warn("missing environment variables in config",
				zap.String("path", path),
				zap.Strings("missing", missing),
			)
		}
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg, errs := normalizeConfig(raw)
	if len(errs) > 0 {
		return Config{}, domain.E(domain.CodeConfiguration, "config.Load",
			strings.Join(errs, "; "), nil)
	}
	return cfg, nil
}

func normalizeConfig(raw rawConfig) (Config, []string) {
	var errs []string

	driver := strings.ToLower(strings.TrimSpace(raw.Datastore.Driver))
	switch driver {
	case "":
		driver = "sqlite"
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("datastore.driver: unsupported %q (want postgres or sqlite)", raw.Datastore.Driver))
	}
	if strings.TrimSpace(raw.Datastore.DSN) == "" {
		errs = append(errs, "datastore.dsn: required")
	}

	level := strings.ToLower(strings.TrimSpace(raw.Logging.Level))
	switch level {
	case "":
		level = "info"
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level: unknown %q", raw.Logging.Level))
	}
	format := strings.ToLower(strings.TrimSpace(raw.Logging.Format))
	switch format {
	case "":
		format = "json"
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format: unknown %q", raw.Logging.Format))
	}

	if raw.Bootstrap.WorkerPort < 0 || raw.Bootstrap.WorkerPort > 65535 {
		errs = append(errs, fmt.Sprintf("bootstrap.worker_port: %d out of range", raw.Bootstrap.WorkerPort))
	}

	subject := strings.TrimSpace(raw.NATS.Subject)
	if subject == "" {
		subject = domain.DefaultCommandSubject
	}
	queue := strings.TrimSpace(raw.NATS.Queue)
	if queue == "" {
		queue = domain.DefaultCommandQueue
	}

	tunables := domain.Tunables{
		ProvisionerIntervalSeconds: raw.Loops.ProvisionerIntervalSeconds,
		HealthIntervalSeconds:      raw.Loops.HealthIntervalSeconds,
		TerminatorIntervalSeconds:  raw.Loops.TerminatorIntervalSeconds,
		WatchdogIntervalSeconds:    raw.Loops.WatchdogIntervalSeconds,
		RecoveryIntervalSeconds:    raw.Loops.RecoveryIntervalSeconds,
		ClaimBatchSize:             raw.Loops.ClaimBatchSize,
		HealthFailureThreshold:     raw.Health.FailureThreshold,
		StalenessWindowSeconds:     raw.Router.StalenessWindowSeconds,
	}.Normalize()

	cfg := Config{
		Datastore: DatastoreConfig{Driver: driver, DSN: strings.TrimSpace(raw.Datastore.DSN)},
		NATS: NATSConfig{
			URL:     strings.TrimSpace(raw.NATS.URL),
			Subject: subject,
			Queue:   queue,
		},
		HTTP: HTTPConfig{
			ObservabilityAddr: raw.HTTP.ObservabilityAddr,
			SelectionAddr:     raw.HTTP.SelectionAddr,
		},
		Bootstrap: BootstrapConfig{
			Image:       strings.TrimSpace(raw.Bootstrap.Image),
			WorkerPort:  raw.Bootstrap.WorkerPort,
			CallbackURL: strings.TrimSpace(raw.Bootstrap.CallbackURL),
			SSHKeyIDs:   raw.Bootstrap.SSHKeyIDs,
			Diskless:    raw.Bootstrap.Diskless,
		},
		Providers: ProvidersConfig{
			SecretFile:     strings.TrimSpace(raw.Providers.SecretFile),
			PassphraseFile: strings.TrimSpace(raw.Providers.PassphraseFile),
		},
		Logging:  LoggingConfig{Level: level, Format: format},
		Tracing:  TracingConfig{Enabled: raw.Tracing.Enabled},
		Tunables: tunables,
	}
	return cfg, errs
}

const providerEnvPrefix = "INVENTIV_PROVIDERS_"

// CollectProviderEnv extracts INVENTIV_PROVIDERS_<CODE>_<FIELD> variables
// into the per-provider credential map the resolver consults. Field names
// keep their underscores: INVENTIV_PROVIDERS_TENSORRACK_SECRET_KEY becomes
// Env["tensorrack"]["secret_key"].
func CollectProviderEnv(environ []string) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, providerEnvPrefix) {
			continue
		}
		code, field, ok := strings.Cut(strings.TrimPrefix(name, providerEnvPrefix), "_")
		if !ok || code == "" || field == "" {
			continue
		}
		code = strings.ToLower(code)
		if out[code] == nil {
			out[code] = make(map[string]string)
		}
		out[code][strings.ToLower(field)] = value
	}
	return out
}
