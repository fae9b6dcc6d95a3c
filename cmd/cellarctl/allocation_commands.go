package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAllocationCommand(ctx *commandContext) *cobra.Command {
	allocCmd := &cobra.Command{
		Use:     "alloc",
		Aliases: []string{"allocation"},
		Short:   "Reserve vessels ahead of a phase",
	}
	allocCmd.AddCommand(newAllocationPlanCommand(ctx))
	allocCmd.AddCommand(&cobra.Command{
		Use:   "activate <allocation>",
		Short: "Promote a PLANNED allocation and occupy its vessel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				alloc, err := a.svc.ActivateAllocation(cmd.Context(), ctx.tenant(), args[0])
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), alloc)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Allocation %s is %s\n", alloc.ID, alloc.Status)
				return nil
			})
		},
	})
	allocCmd.AddCommand(&cobra.Command{
		Use:   "cancel <allocation>",
		Short: "Cancel a PLANNED or ACTIVE allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				alloc, err := a.svc.CancelAllocation(cmd.Context(), ctx.tenant(), args[0])
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), alloc)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Allocation %s is %s\n", alloc.ID, alloc.Status)
				return nil
			})
		},
	})
	return allocCmd
}

func newAllocationPlanCommand(ctx *commandContext) *cobra.Command {
	var phase, start, end string
	cmd := &cobra.Command{
		Use:   "plan <batch> <vessel>",
		Short: "Reserve a vessel for a batch over a window",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePhase(phase)
			if err != nil {
				return err
			}
			window, err := parseWindow(start, end, time.Now())
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				b, err := resolveBatch(cmd.Context(), a.svc, ctx.tenant(), args[0])
				if err != nil {
					return err
				}
				v, err := resolveVessel(cmd.Context(), a.svc, ctx.tenant(), args[1])
				if err != nil {
					return err
				}
				alloc, err := a.svc.PlanAllocation(cmd.Context(), ctx.tenant(), b.ID, v.ID, p, window)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), alloc)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Allocation %s reserves %s for %s from %s to %s\n",
					alloc.ID, v.Name, b.Code, formatWhen(alloc.PlannedStart), formatWhen(alloc.PlannedEnd))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "FERMENTING", "Phase the vessel is reserved for")
	cmd.Flags().StringVar(&start, "start", "", "Window start (RFC3339, defaults to now)")
	cmd.Flags().StringVar(&end, "end", "", "Window end (RFC3339, defaults to start plus 14 days)")
	return cmd
}
