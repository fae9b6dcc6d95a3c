package main

import (
	"cellarcore/internal/timeline"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show the most recent timeline events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				reader, ok := a.timeline.(timeline.Reader)
				if !ok {
					return errors.New("configured timeline driver cannot be read back (use fs, s3 or redis)")
				}
				events, err := reader.Recent(cmd.Context(), ctx.tenant(), limit)
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd.OutOrStdout(), events)
				}
				if len(events) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No timeline events")
					return nil
				}
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{
						formatWhen(e.OccurredAt),
						string(e.Type),
						e.Description,
						strings.Join(e.VesselIDs, ", "),
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"When", "Type", "Description", "Vessels"}, rows, nil)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	return cmd
}
