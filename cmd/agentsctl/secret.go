package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/provider"
)

func newSecretCmd(opts *ctlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage provider credentials in the orchestrator datastore",
	}

	cmd.AddCommand(newSecretSetCmd(opts))

	return cmd
}

func newSecretSetCmd(opts *ctlOptions) *cobra.Command {
	var passphraseFile string

	cmd := &cobra.Command{
		Use:   "set <provider-code> <field> <value>",
		Short: "Store a provider credential, encrypted when a passphrase file is given",
		Long: "Writes a provider credential to the datastore settings table, where the\n" +
			"daemon resolves it ahead of environment variables and the secret file.\n" +
			"With --passphrase-file the value is sealed as an enc:v1: blob; the daemon\n" +
			"needs the same passphrase file (providers.passphrase_file) to open it.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, field, value := args[0], args[1], args[2]

			stored := value
			encrypted := false
			if passphraseFile != "" {
				raw, err := os.ReadFile(passphraseFile)
				if err != nil {
					return fmt.Errorf("read passphrase file: %w", err)
				}
				stored, err = provider.EncryptSecret(value, strings.TrimSpace(string(raw)))
				if err != nil {
					return err
				}
				encrypted = true
			}

			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			key := domain.ProviderSettingKey(code, field)
			if err := st.SetSetting(cmd.Context(), key, stored); err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(map[string]any{"key": key, "encrypted": encrypted})
			}
			if encrypted {
				fmt.Printf("stored %s (encrypted)\n", key)
			} else {
				fmt.Printf("stored %s (plaintext)\n", key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "file holding the encryption passphrase")

	return cmd
}
