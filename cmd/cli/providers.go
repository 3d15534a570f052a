package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/QTest-hq/qroute/internal/config"
	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/QTest-hq/qroute/internal/selector"
	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every enabled provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			statuses := client.HealthCheck(cmd.Context())
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, statuses)
			}
			if len(statuses) == 0 {
				fmt.Fprintln(out, "No providers enabled")
				return nil
			}

			providers := make([]llm.Provider, 0, len(statuses))
			for p := range statuses {
				providers = append(providers, p)
			}
			sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tSTATUS\tLATENCY\tMODEL\tERROR")
			for _, p := range providers {
				st := statuses[p]
				status := "ok"
				if !st.Healthy {
					status = "down"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					p, status, st.Latency.Round(time.Millisecond), st.Info.DefaultModel, st.Error)
			}
			return tw.Flush()
		},
	}
}

func modelsCmd() *cobra.Command {
	var (
		tier       string
		exportPath string
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		Long: `Lists catalog models as seen by the selector. Models of providers that are
not enabled are shown as disabled. --export writes the full catalog as YAML
for use with LLM_CATALOG_PATH.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := selector.Tier(tier)
			if t != "" && !t.Valid() {
				return fmt.Errorf("invalid tier %q", tier)
			}

			client, err := newClient()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if exportPath != "" {
				if err := config.SaveCatalogFile(exportPath, selector.ToCatalogFile(client.Catalog().Models())); err != nil {
					return fmt.Errorf("failed to export catalog: %w", err)
				}
				fmt.Fprintf(out, "Catalog written to %s\n", exportPath)
				return nil
			}

			var models []selector.ModelDescriptor
			for _, m := range client.Models() {
				if t == "" || m.Tier == t {
					models = append(models, m)
				}
			}

			if jsonOutput {
				return printJSON(out, models)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tPROVIDER\tTIER\t$/1K\tCONTEXT\tENABLED\tCAPABILITIES")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.5f\t%d\t%t\t%s\n",
					m.ID, m.Provider, m.Tier, m.CostPer1K, m.MaxTokens, m.Enabled, strings.Join(m.Capabilities, ","))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&tier, "tier", "t", "", "Only show models of this tier (fast, balanced, powerful, specialized)")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write the catalog to a YAML file instead of listing it")

	return cmd
}
