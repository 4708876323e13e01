package main

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/commands"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/ctlconfig"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
)

const publishTimeout = 10 * time.Second

type ctlOptions struct {
	settingsPath string
	natsURL      string
	subject      string
	storeDriver  string
	storeDSN     string
	jsonOutput   bool

	stored map[string]string
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := ctlOptions{
		logger: zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "agentsctl",
		Short: "Control CLI for the Inventiv agents orchestrator",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.loadStoredDefaults()
		},
	}

	root.PersistentFlags().StringVar(&opts.settingsPath, "settings", "", "path to the local settings db (default under the user config dir)")
	root.PersistentFlags().StringVar(&opts.natsURL, "nats", "", "NATS URL of the command channel (default from settings, then "+nats.DefaultURL+")")
	root.PersistentFlags().StringVar(&opts.subject, "subject", "", "command subject (default "+domain.DefaultCommandSubject+")")
	root.PersistentFlags().StringVar(&opts.storeDriver, "store-driver", "", "datastore driver for direct reads: sqlite or postgres (default from settings)")
	root.PersistentFlags().StringVar(&opts.storeDSN, "store-dsn", "", "datastore DSN for direct reads (default from settings)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newProvisionCmd(&opts),
		newTerminateCmd(&opts),
		newReconcileCmd(&opts),
		newSyncCatalogCmd(&opts),
		newStatusCmd(&opts),
		newConfigCmd(&opts),
		newSecretCmd(&opts),
	)

	return root
}

// loadStoredDefaults fills unset connection options from the local settings
// store. Explicit flags always win; built-in defaults come last.
func (o *ctlOptions) loadStoredDefaults() error {
	if o.settingsPath == "" {
		o.settingsPath = ctlconfig.DefaultPath()
	}
	settings, err := ctlconfig.Open(o.settingsPath)
	if err != nil {
		return err
	}
	defer func() { _ = settings.Close() }()

	stored, err := settings.List()
	if err != nil {
		return err
	}
	o.stored = stored

	o.natsURL = pick(o.natsURL, stored[ctlconfig.KeyNATSURL], nats.DefaultURL)
	o.subject = pick(o.subject, "", domain.DefaultCommandSubject)
	o.storeDriver = pick(o.storeDriver, stored[ctlconfig.KeyDatastoreDriver], store.DriverSQLite)
	o.storeDSN = pick(o.storeDSN, stored[ctlconfig.KeyDatastoreDSN], "orchestrator.db")
	return nil
}

// storedDefault resolves a per-command flag against the stored defaults.
func (o *ctlOptions) storedDefault(flagValue, key string) string {
	if flagValue != "" {
		return flagValue
	}
	return o.stored[key]
}

func (o *ctlOptions) publish(ctx context.Context, cmd domain.Command) error {
	conn, err := commands.Connect(o.natsURL, "agentsctl", o.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	publisher := commands.NewPublisher(conn, commands.PublisherOptions{
		Subject: o.subject,
		Logger:  o.logger,
	})

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return publisher.Publish(ctx, cmd)
}

func (o *ctlOptions) openStore() (*store.Store, error) {
	return store.Open(o.storeDriver, o.storeDSN, store.Options{Logger: o.logger})
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
