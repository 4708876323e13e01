package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/ctlconfig"
)

func newProvisionCmd(opts *ctlOptions) *cobra.Command {
	var (
		providerID     string
		zoneID         string
		instanceTypeID string
		modelID        string
		reason         string
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Queue a new worker instance on a provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			providerID = opts.storedDefault(providerID, ctlconfig.KeyDefaultProvider)
			zoneID = opts.storedDefault(zoneID, ctlconfig.KeyDefaultZone)
			instanceTypeID = opts.storedDefault(instanceTypeID, ctlconfig.KeyDefaultInstanceType)
			modelID = opts.storedDefault(modelID, ctlconfig.KeyDefaultModel)
			if providerID == "" || zoneID == "" || instanceTypeID == "" {
				return errors.New("provider, zone and instance type are required (flags or stored defaults)")
			}

			command := domain.Command{
				Type:           domain.CommandProvision,
				ProviderID:     providerID,
				ZoneID:         zoneID,
				InstanceTypeID: instanceTypeID,
				ModelID:        modelID,
				Reason:         reason,
			}
			if err := opts.publish(cmd.Context(), command); err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(map[string]any{"published": true, "command": command})
			}
			fmt.Printf("provision queued provider=%s zone=%s type=%s model=%s\n",
				providerID, zoneID, instanceTypeID, modelID)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "provider code (default from settings)")
	cmd.Flags().StringVar(&zoneID, "zone", "", "zone id (default from settings)")
	cmd.Flags().StringVar(&instanceTypeID, "instance-type", "", "instance type id (default from settings)")
	cmd.Flags().StringVar(&modelID, "model", "", "model id the worker should serve (default from settings)")
	cmd.Flags().StringVar(&reason, "reason", "", "free-form reason recorded with the command")

	return cmd
}
