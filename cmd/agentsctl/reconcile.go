package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func newReconcileCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Trigger a drift sweep across every provider zone with live instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			command := domain.Command{Type: domain.CommandReconcile}
			if err := opts.publish(cmd.Context(), command); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(map[string]any{"published": true, "command": command})
			}
			fmt.Println("reconcile queued")
			return nil
		},
	}
}

func newSyncCatalogCmd(opts *ctlOptions) *cobra.Command {
	var (
		providerID string
		zoneID     string
	)

	cmd := &cobra.Command{
		Use:   "sync-catalog",
		Short: "Refresh instance-type catalogs (all live zones when no provider is given)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			command := domain.Command{
				Type:       domain.CommandSyncCatalog,
				ProviderID: providerID,
				ZoneID:     zoneID,
			}
			if err := opts.publish(cmd.Context(), command); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(map[string]any{"published": true, "command": command})
			}
			if providerID == "" {
				fmt.Println("catalog sync queued for all live zones")
			} else {
				fmt.Printf("catalog sync queued provider=%s zone=%s\n", providerID, zoneID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "provider code (empty sweeps all live zones)")
	cmd.Flags().StringVar(&zoneID, "zone", "", "zone id")

	return cmd
}
