package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <query>",
		Short: "Classify a query by category and complexity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			c := client.Classify(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, c)
			}

			fmt.Fprintf(out, "Category:   %s\n", c.Category)
			fmt.Fprintf(out, "Complexity: %s\n", c.Complexity)
			fmt.Fprintf(out, "Confidence: %.2f\n", c.Confidence)
			if len(c.MatchedPatterns) > 0 {
				fmt.Fprintf(out, "Patterns:   %s\n", strings.Join(c.MatchedPatterns, ", "))
			}
			if len(c.SuggestedAgents) > 0 {
				fmt.Fprintf(out, "Agents:     %s\n", strings.Join(c.SuggestedAgents, ", "))
			}
			fmt.Fprintf(out, "Strategy:   %s (priority %s, ~%d tokens, cache %s)\n",
				c.Hints.ExecutionStrategy, c.Hints.Priority, c.Hints.EstimatedTokens, c.Hints.CacheStrategy)
			return nil
		},
	}
}

func selectCmd() *cobra.Command {
	var tokens int

	cmd := &cobra.Command{
		Use:   "select <query>",
		Short: "Show which model a query would be routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokens < 0 {
				return fmt.Errorf("--tokens must not be negative")
			}
			client, err := newClient()
			if err != nil {
				return err
			}

			c, r := client.SelectModel(strings.Join(args, " "), tokens)
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]any{
					"classification": c,
					"selection":      r,
				})
			}

			fmt.Fprintf(out, "Query:      %s/%s (confidence %.2f)\n", c.Category, c.Complexity, c.Confidence)
			fmt.Fprintf(out, "Model:      %s (%s, %s tier)\n", r.ModelID, r.Provider, r.Tier)
			fmt.Fprintf(out, "Confidence: %.2f\n", r.Confidence)
			fmt.Fprintf(out, "Estimate:   %d tokens, $%.6f\n", r.EstimatedTokens, r.EstimatedCost)
			if len(r.Fallbacks) > 0 {
				fmt.Fprintf(out, "Fallbacks:  %s\n", strings.Join(r.Fallbacks, ", "))
			}
			fmt.Fprintf(out, "Reasoning:  %s\n", r.Reasoning)
			return nil
		},
	}

	cmd.Flags().IntVarP(&tokens, "tokens", "t", 0, "Estimated tokens (0 = classifier estimate)")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
