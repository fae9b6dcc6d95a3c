package main

import (
	"cellarcore/internal/registry"
	"cellarcore/pkg/domain"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newVesselCommand(ctx *commandContext) *cobra.Command {
	vesselCmd := &cobra.Command{
		Use:     "vessel",
		Aliases: []string{"vessels"},
		Short:   "Manage fermenters, brite tanks and other vessels",
	}
	vesselCmd.AddCommand(newVesselAddCommand(ctx))
	vesselCmd.AddCommand(newVesselListCommand(ctx))
	vesselCmd.AddCommand(newVesselStatusCommand(ctx))
	vesselCmd.AddCommand(newVesselScheduleCommand(ctx))
	vesselCmd.AddCommand(newVesselAvailabilityCommand(ctx))
	return vesselCmd
}

func newVesselAddCommand(ctx *commandContext) *cobra.Command {
	var capacity float64
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register an AVAILABLE vessel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				v, err := a.svc.OnboardVessel(cmd.Context(), registry.OnboardInput{
					TenantID: ctx.tenant(),
					Name:     args[0],
					Capacity: capacity,
				})
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), v)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vessel %s (%s) registered with capacity %s\n", v.Name, v.ID, formatVolume(v.Capacity))
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&capacity, "capacity", 0, "Working capacity in litres")
	_ = cmd.MarkFlagRequired("capacity")
	return cmd
}

func newVesselListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List vessels and their occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				vessels, err := a.svc.ListVessels(cmd.Context(), ctx.tenant())
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), vessels)
				}
				if len(vessels) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No vessels registered")
					return nil
				}
				codes := batchCodes(cmd, a, ctx.tenant())
				rows := make([][]string, 0, len(vessels))
				for _, v := range vessels {
					occupant := "-"
					if v.CurrentBatchID != nil {
						occupant = codes[*v.CurrentBatchID]
						if occupant == "" {
							occupant = *v.CurrentBatchID
						}
					}
					rows = append(rows, []string{v.Name, string(v.Status), formatVolume(v.Capacity), occupant, v.ID})
				}
				renderTable(cmd.OutOrStdout(), []string{"Name", "Status", "Capacity", "Batch", "ID"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
				return nil
			})
		},
	}
}

func batchCodes(cmd *cobra.Command, a *app, tenantID string) map[string]string {
	out := make(map[string]string)
	batches, err := a.svc.ListBatches(cmd.Context(), tenantID)
	if err != nil {
		return out
	}
	for _, b := range batches {
		out[b.ID] = b.Code
	}
	return out
}

func newVesselStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <vessel> <status>",
		Short: "Set an operational status (AVAILABLE, NEEDS_CLEANING, MAINTENANCE, OUT_OF_SERVICE)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.VesselStatus(strings.ToUpper(strings.TrimSpace(args[1])))
			return ctx.withApp(cmd, func(a *app) error {
				v, err := resolveVessel(cmd.Context(), a.svc, ctx.tenant(), args[0])
				if err != nil {
					return err
				}
				v, err = a.svc.SetVesselStatus(cmd.Context(), ctx.tenant(), v.ID, status)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), v)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vessel %s is now %s\n", v.Name, v.Status)
				return nil
			})
		},
	}
}

func newVesselScheduleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <vessel>",
		Short: "Show the holding allocations of a vessel in start order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				v, err := resolveVessel(cmd.Context(), a.svc, ctx.tenant(), args[0])
				if err != nil {
					return err
				}
				allocs, err := a.svc.Schedule(cmd.Context(), ctx.tenant(), v.ID)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), allocs)
				}
				if len(allocs) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Vessel %s has no planned or active allocations\n", v.Name)
					return nil
				}
				renderAllocations(cmd, a, ctx.tenant(), allocs)
				return nil
			})
		},
	}
}

func newVesselAvailabilityCommand(ctx *commandContext) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "available <vessel>",
		Short: "Check whether a vessel can be reserved for a window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := parseWindow(start, end, time.Now())
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app) error {
				v, err := resolveVessel(cmd.Context(), a.svc, ctx.tenant(), args[0])
				if err != nil {
					return err
				}
				res, err := a.svc.CheckAvailability(cmd.Context(), ctx.tenant(), v.ID, window)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"vessel_id": res.VesselID,
						"available": res.Available,
						"reason":    availabilityReason(res.Err()),
					})
				}
				if res.Available {
					fmt.Fprintf(cmd.OutOrStdout(), "Vessel %s is available\n", v.Name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vessel %s is unavailable: %s\n", v.Name, availabilityReason(res.Err()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Window start (RFC3339, defaults to now)")
	cmd.Flags().StringVar(&end, "end", "", "Window end (RFC3339, defaults to start plus 14 days)")
	return cmd
}

func availabilityReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func renderAllocations(cmd *cobra.Command, a *app, tenantID string, allocs []domain.Allocation) {
	codes := batchCodes(cmd, a, tenantID)
	rows := make([][]string, 0, len(allocs))
	for _, alloc := range allocs {
		code := codes[alloc.BatchID]
		if code == "" {
			code = alloc.BatchID
		}
		rows = append(rows, []string{
			alloc.ID,
			code,
			string(alloc.Phase),
			string(alloc.Status),
			formatWhen(alloc.PlannedStart),
			formatWhen(alloc.PlannedEnd),
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"Allocation", "Batch", "Phase", "Status", "Start", "End"}, rows, nil)
}
