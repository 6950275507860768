// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grantscope/harvester/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A resilient multi-engine harvester for funding opportunities.",
		Long: `harvester collects grant and funding-opportunity listings from
government portals, foundation APIs, NGO sites, and PDF announcements.
Each configured source picks a fetch engine (static, browser, api, pdf)
and the harvester normalizes everything into one record shape.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(func() { config.Init(cfgFile) })

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ./harvester.yaml, /etc/harvester/, $HOME/.harvester)")

	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}
