package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/infra/store"
)

func newStatusCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [instance-id]",
		Short: "Show fleet state from the datastore, or one instance with its history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if len(args) == 1 {
				return printInstanceDetail(cmd.Context(), st, args[0], opts.jsonOutput)
			}
			return printFleet(cmd.Context(), st, opts.jsonOutput)
		},
	}
}

func printFleet(ctx context.Context, st *store.Store, jsonOutput bool) error {
	counts, err := st.CountByStatus(ctx)
	if err != nil {
		return err
	}
	instances, err := st.ListInstances(ctx,
		domain.StatusProvisioning,
		domain.StatusBooting,
		domain.StatusInstalling,
		domain.StatusStarting,
		domain.StatusReady,
		domain.StatusTerminating,
		domain.StatusStartupFailed,
	)
	if err != nil {
		return err
	}

	if jsonOutput {
		rows := make([]map[string]any, 0, len(instances))
		for i := range instances {
			rows = append(rows, instanceFields(&instances[i]))
		}
		return writeJSON(map[string]any{
			"counts":    counts,
			"instances": rows,
		})
	}

	providers := make([]string, 0, len(counts))
	for p := range counts {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		statuses := make([]string, 0, len(counts[p]))
		for s := range counts[p] {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Printf("%s\t%s\t%d\n", p, s, counts[p][domain.InstanceStatus(s)])
		}
	}
	if len(instances) > 0 {
		fmt.Println()
	}
	for i := range instances {
		printInstanceLine(&instances[i])
	}
	return nil
}

func printInstanceDetail(ctx context.Context, st *store.Store, id string, jsonOutput bool) error {
	inst, err := st.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	history, err := st.History(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		steps := make([]map[string]any, 0, len(history))
		for _, h := range history {
			steps = append(steps, map[string]any{
				"from":   h.FromStatus,
				"to":     h.ToStatus,
				"reason": h.Reason,
				"at":     h.CreatedAt,
			})
		}
		return writeJSON(map[string]any{
			"instance": instanceFields(inst),
			"history":  steps,
		})
	}

	printInstanceLine(inst)
	for _, h := range history {
		fmt.Printf("  %s -> %s\t%s", h.FromStatus, h.ToStatus, h.CreatedAt.Format("2006-01-02T15:04:05Z"))
		if h.Reason != "" {
			fmt.Printf("\t%s", h.Reason)
		}
		fmt.Println()
	}
	return nil
}
