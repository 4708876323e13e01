package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func newTerminateCmd(opts *ctlOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "terminate <instance-id>",
		Short: "Request termination of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := domain.Command{
				Type:       domain.CommandTerminate,
				InstanceID: args[0],
				Reason:     reason,
			}
			if err := opts.publish(cmd.Context(), command); err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(map[string]any{"published": true, "command": command})
			}
			fmt.Printf("terminate queued instance=%s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "deletion reason recorded on the row")

	return cmd
}
