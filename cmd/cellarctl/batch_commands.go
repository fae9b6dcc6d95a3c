package main

import (
	"cellarcore/internal/core"
	"cellarcore/pkg/domain"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newRecipeCommand(ctx *commandContext) *cobra.Command {
	recipeCmd := &cobra.Command{
		Use:   "recipe",
		Short: "Manage recipes consulted by blend validation",
	}
	var style, strain string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				r, err := a.svc.CreateRecipe(cmd.Context(), domain.Recipe{
					Base:   domain.Base{TenantID: ctx.tenant()},
					Name:   args[0],
					Style:  style,
					Strain: strain,
				})
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), r)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recipe %s (%s) registered\n", r.Name, r.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&style, "style", "", "Beer style")
	add.Flags().StringVar(&strain, "strain", "", "Yeast strain")
	_ = add.MarkFlagRequired("strain")
	recipeCmd.AddCommand(add)
	return recipeCmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:     "batch",
		Aliases: []string{"batches"},
		Short:   "Plan and inspect batches",
	}
	batchCmd.AddCommand(newBatchPlanCommand(ctx))
	batchCmd.AddCommand(newBatchListCommand(ctx))
	batchCmd.AddCommand(newBatchShowCommand(ctx))
	return batchCmd
}

func newBatchPlanCommand(ctx *commandContext) *cobra.Command {
	var recipeID string
	var volume float64
	cmd := &cobra.Command{
		Use:   "plan <code>",
		Short: "Create a PLANNED batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				b, err := a.svc.PlanBatch(cmd.Context(), core.PlanBatchInput{
					TenantID: ctx.tenant(),
					Code:     args[0],
					RecipeID: recipeID,
					Volume:   volume,
				})
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), b)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Batch %s (%s) planned at %s\n", b.Code, b.ID, formatVolume(b.Volume))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recipeID, "recipe", "", "Recipe ID")
	cmd.Flags().Float64Var(&volume, "volume", 0, "Batch volume in litres")
	_ = cmd.MarkFlagRequired("recipe")
	_ = cmd.MarkFlagRequired("volume")
	return cmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.Phase
			if phase != "" {
				p, err := parsePhase(phase)
				if err != nil {
					return err
				}
				filter = p
			}
			return ctx.withApp(cmd, func(a *app) error {
				batches, err := a.svc.ListBatches(cmd.Context(), ctx.tenant())
				if err != nil {
					return err
				}
				if filter != "" {
					kept := batches[:0]
					for _, b := range batches {
						if b.Phase == filter {
							kept = append(kept, b)
						}
					}
					batches = kept
				}
				sort.Slice(batches, func(i, j int) bool { return batches[i].Code < batches[j].Code })
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), batches)
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches")
					return nil
				}
				rows := make([][]string, 0, len(batches))
				for _, b := range batches {
					rows = append(rows, []string{
						b.Code,
						string(b.Phase),
						formatVolume(b.Volume),
						formatOptionalString(b.LotID),
						formatOptionalString(b.ParentBatchID),
						b.ID,
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"Code", "Phase", "Volume", "Lot", "Parent", "ID"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "Only show batches in this phase")
	return cmd
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch>",
		Short: "Show a batch with its readings and phase history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				b, err := resolveBatch(cmd.Context(), a.svc, ctx.tenant(), args[0])
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), b)
				}
				rows := [][]string{
					{"ID", b.ID},
					{"Code", b.Code},
					{"Phase", string(b.Phase)},
					{"Phase code", valueOrDash(b.PhaseCode)},
					{"Volume", formatVolume(b.Volume)},
					{"Recipe", b.RecipeID},
					{"Lot", formatOptionalString(b.LotID)},
					{"Parent", formatOptionalString(b.ParentBatchID)},
					{"Original gravity", formatOptionalFloat(b.OriginalGravity)},
					{"Final gravity", formatOptionalFloat(b.FinalGravity)},
					{"Temperature", formatOptionalFloat(b.Temperature)},
					{"Fermenting since", formatOptionalTime(b.FermentationStartedAt)},
					{"Conditioning since", formatOptionalTime(b.ConditioningStartedAt)},
					{"Packaged", formatOptionalTime(b.PackagedAt)},
					{"Cancelled", formatOptionalTime(b.CancelledAt)},
				}
				renderTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows, nil)
				return nil
			})
		},
	}
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func newLotCommand(ctx *commandContext) *cobra.Command {
	lotCmd := &cobra.Command{
		Use:     "lot",
		Aliases: []string{"lots"},
		Short:   "Inspect blend lots",
	}
	lotCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List lots and their member batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				lots, err := a.svc.ListLots(cmd.Context(), ctx.tenant())
				if err != nil {
					return err
				}
				sort.Slice(lots, func(i, j int) bool { return lots[i].Code < lots[j].Code })
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), lots)
				}
				if len(lots) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No lots")
					return nil
				}
				codes := batchCodes(cmd, a, ctx.tenant())
				rows := make([][]string, 0, len(lots))
				for _, lot := range lots {
					members := make([]string, 0, len(lot.BatchIDs))
					for _, id := range lot.BatchIDs {
						if code := codes[id]; code != "" {
							members = append(members, code)
						} else {
							members = append(members, id)
						}
					}
					rows = append(rows, []string{lot.Code, strings.Join(members, ", "), formatWhen(lot.CreatedAt), lot.ID})
				}
				renderTable(cmd.OutOrStdout(), []string{"Code", "Batches", "Created", "ID"}, rows, nil)
				return nil
			})
		},
	})
	return lotCmd
}
