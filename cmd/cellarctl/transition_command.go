package main

import (
	"cellarcore/internal/blend"
	"cellarcore/pkg/domain"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type transitionOptions struct {
	to           string
	vessels      []string
	blendSources []string
	lot          string
	start        string
	end          string
	og           float64
	fg           float64
	temp         float64
}

func newTransitionCommand(ctx *commandContext) *cobra.Command {
	opts := &transitionOptions{}
	cmd := &cobra.Command{
		Use:   "transition <batch>",
		Short: "Move a batch to its next phase, optionally splitting or blending it",
		Long: `Move a batch to its next phase.

One --vessel moves the batch into that vessel. Two or more split it, the
first entry staying with the batch and each further entry forming a sibling
batch; give volumes as vessel=litres. Any --blend-source or --lot merges the
batch with the sources into a lot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := parsePhase(opts.to)
			if err != nil {
				return err
			}
			window, err := parseOptionalWindow(opts.start, opts.end)
			if err != nil {
				return err
			}
			measurements := domain.Measurements{}
			flags := cmd.Flags()
			if flags.Changed("og") {
				measurements.OriginalGravity = &opts.og
			}
			if flags.Changed("fg") {
				measurements.FinalGravity = &opts.fg
			}
			if flags.Changed("temp") {
				measurements.Temperature = &opts.temp
			}
			return ctx.withApp(cmd, func(a *app) error {
				c := cmd.Context()
				tenantID := ctx.tenant()
				batch, err := resolveBatch(c, a.svc, tenantID, args[0])
				if err != nil {
					return err
				}
				req := domain.ScenarioRequest{Window: window}
				for _, entry := range opts.vessels {
					ref, volume, err := parseVesselVolume(entry)
					if err != nil {
						return err
					}
					v, err := resolveVessel(c, a.svc, tenantID, ref)
					if err != nil {
						return err
					}
					req.Allocations = append(req.Allocations, domain.VesselVolume{VesselID: v.ID, Volume: volume})
				}
				if req.BlendSources, err = resolveBatchIDs(c, a.svc, tenantID, opts.blendSources); err != nil {
					return err
				}
				if opts.lot != "" {
					if req.TargetLotID, err = resolveLot(c, a.svc, tenantID, opts.lot); err != nil {
						return err
					}
				}
				res, err := a.svc.Transition(c, domain.TransitionRequest{
					TenantID:     tenantID,
					BatchID:      batch.ID,
					TargetPhase:  phase,
					Scenario:     domain.BuildScenario(req),
					Measurements: measurements,
				})
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				printTransition(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.to, "to", "", "Target phase (FERMENTING, CONDITIONING, PACKAGED, CANCELLED)")
	flags.StringArrayVar(&opts.vessels, "vessel", nil, "Destination vessel as id-or-name[=volume]; repeat to split")
	flags.StringArrayVar(&opts.blendSources, "blend-source", nil, "Batch merged into the lot; repeatable")
	flags.StringVar(&opts.lot, "lot", "", "Existing lot to join")
	flags.StringVar(&opts.start, "start", "", "Allocation window start (RFC3339)")
	flags.StringVar(&opts.end, "end", "", "Allocation window end (RFC3339)")
	flags.Float64Var(&opts.og, "og", 0, "Original gravity reading")
	flags.Float64Var(&opts.fg, "fg", 0, "Final gravity reading")
	flags.Float64Var(&opts.temp, "temp", 0, "Temperature reading")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func printTransition(w io.Writer, res domain.TransitionResult) {
	b := res.Batch
	fmt.Fprintf(w, "Batch %s is %s (%s)\n", b.Code, b.Phase, valueOrDash(b.PhaseCode))
	for _, s := range res.Siblings {
		fmt.Fprintf(w, "  split: %s %s\n", s.Code, formatVolume(s.Volume))
	}
	if res.Lot != nil {
		fmt.Fprintf(w, "  lot: %s with %d batches\n", res.Lot.Code, len(res.Lot.BatchIDs))
	}
	for _, a := range res.Allocations {
		fmt.Fprintf(w, "  reserved: %s in %s until %s\n", a.BatchID, a.VesselID, formatWhen(a.PlannedEnd))
	}
	for _, a := range res.Released {
		fmt.Fprintf(w, "  released: %s (%s)\n", a.VesselID, strings.ToLower(string(a.Status)))
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	for _, o := range res.Secondary {
		if !o.OK {
			fmt.Fprintf(w, "  %s failed: %s\n", o.Name, o.Reason)
		}
	}
}

func newBlendCommand(ctx *commandContext) *cobra.Command {
	blendCmd := &cobra.Command{
		Use:   "blend",
		Short: "Blend compatibility checks",
	}
	blendCmd.AddCommand(&cobra.Command{
		Use:   "check <batch> <batch>...",
		Short: "Report whether batches may be merged into one lot",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				ids, err := resolveBatchIDs(cmd.Context(), a.svc, ctx.tenant(), args)
				if err != nil {
					return err
				}
				report, err := a.svc.ValidateBlend(cmd.Context(), ctx.tenant(), ids)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				printBlendReport(cmd.OutOrStdout(), report)
				return report.Err()
			})
		},
	})
	return blendCmd
}

func printBlendReport(w io.Writer, report blend.Report) {
	if report.Compatible {
		fmt.Fprintln(w, "Batches are compatible")
	} else {
		fmt.Fprintln(w, "Batches are not compatible")
	}
	for _, f := range report.Errors {
		fmt.Fprintf(w, "  error: %s\n", f.Message())
	}
	for _, f := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", f.Message())
	}
}
