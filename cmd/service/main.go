package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// newRootCmd returns the CLI. Running it without a subcommand serves the map.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "quake-map-service",
		Short:         "Earthquake and tectonic plate web map",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCommand,
	}
	rootCmd.AddCommand(newServeCmd(), newExportCmd())
	return rootCmd
}
