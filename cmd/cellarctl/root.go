package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultTenant = "default"

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "cellarctl",
		Short:         "Vessel allocation and batch lifecycle for a production cellar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	tenant := os.Getenv("CELLAR_TENANT")
	if tenant == "" {
		tenant = defaultTenant
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVarP(&flags.tenant, "tenant", "t", tenant, "Tenant (brewery) to operate on; defaults to $CELLAR_TENANT")
	pf.BoolVar(&flags.json, "json", false, "Print results as JSON")
	pf.BoolVar(&flags.trace, "trace", false, "Write operation spans as JSON lines to stderr")
	pf.BoolVar(&flags.metrics, "metrics", false, "Print operation metrics to stderr on exit (requires metrics.enabled)")

	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVesselCommand(ctx))
	rootCmd.AddCommand(newRecipeCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newLotCommand(ctx))
	rootCmd.AddCommand(newAllocationCommand(ctx))
	rootCmd.AddCommand(newTransitionCommand(ctx))
	rootCmd.AddCommand(newBlendCommand(ctx))
	rootCmd.AddCommand(newTimelineCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
