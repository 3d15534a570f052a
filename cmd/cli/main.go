package main

import (
	"fmt"
	"os"

	"github.com/QTest-hq/qroute/internal/config"
	"github.com/QTest-hq/qroute/internal/dispatch"
	"github.com/QTest-hq/qroute/internal/telemetry"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	jsonOutput bool
	verbose    bool
)

// newClient builds the dispatch client from the environment; tests replace it
var newClient = func() (*dispatch.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return dispatch.NewFromConfig(cfg)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "qroute",
		Short:   "QRoute - query-aware LLM routing",
		Long:    `QRoute classifies queries, picks the best model for each, and dispatches them across local and hosted LLM providers with fallback.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			telemetry.SetupLogging(os.Getenv("ENV") == "production", level, cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(classifyCmd())
	cmd.AddCommand(selectCmd())
	cmd.AddCommand(generateCmd())
	cmd.AddCommand(embedCmd())
	cmd.AddCommand(healthCmd())
	cmd.AddCommand(modelsCmd())

	return cmd
}
