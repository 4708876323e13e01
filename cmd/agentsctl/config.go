package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/ctlconfig"
)

func newConfigCmd(opts *ctlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage local agentsctl settings (connection endpoints, provisioning defaults)",
	}

	cmd.AddCommand(
		newConfigGetCmd(opts),
		newConfigSetCmd(opts),
		newConfigUnsetCmd(opts),
		newConfigListCmd(opts),
	)

	return cmd
}

func newConfigGetCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			settings, err := ctlconfig.Open(opts.settingsPath)
			if err != nil {
				return err
			}
			defer func() { _ = settings.Close() }()

			value, found, err := settings.Get(args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s is not set", args[0])
			}
			if opts.jsonOutput {
				return writeJSON(map[string]string{args[0]: value})
			}
			fmt.Println(value)
			return nil
		},
	}
}

func newConfigSetCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			settings, err := ctlconfig.Open(opts.settingsPath)
			if err != nil {
				return err
			}
			defer func() { _ = settings.Close() }()

			if err := settings.Set(args[0], args[1]); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(map[string]string{args[0]: args[1]})
			}
			fmt.Printf("set %s\n", args[0])
			return nil
		},
	}
}

func newConfigUnsetCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			settings, err := ctlconfig.Open(opts.settingsPath)
			if err != nil {
				return err
			}
			defer func() { _ = settings.Close() }()

			if err := settings.Delete(args[0]); err != nil {
				return err
			}
			if !opts.jsonOutput {
				fmt.Printf("unset %s\n", args[0])
			}
			return nil
		},
	}
}

func newConfigListCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print all settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			settings, err := ctlconfig.Open(opts.settingsPath)
			if err != nil {
				return err
			}
			defer func() { _ = settings.Close() }()

			stored, err := settings.List()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(stored)
			}

			keys := make([]string, 0, len(stored))
			for k := range stored {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, stored[k])
			}
			return nil
		},
	}
}
