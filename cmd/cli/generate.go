package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/QTest-hq/qroute/internal/dispatch"
	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	var (
		system      string
		query       string
		maxTokens   int
		temperature float64
		stream      bool
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Route a prompt to the best available model and print the completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxTokens < 0 {
				return fmt.Errorf("--max-tokens must not be negative")
			}
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			prompt := strings.Join(args, " ")
			if query == "" {
				query = prompt
			}
			req := &llm.Request{
				Prompt:      prompt,
				System:      system,
				MaxTokens:   maxTokens,
				Temperature: temperature,
			}

			out := cmd.OutOrStdout()
			if stream {
				return streamCompletion(ctx, cmd, client, req, query)
			}

			resp, err := client.GenerateText(ctx, req, query)
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}
			if jsonOutput {
				return printJSON(out, resp)
			}

			fmt.Fprintln(out, resp.Content)
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s/%s] %d tokens, $%.6f, %s\n",
				resp.Provider, resp.Model, resp.Usage.TotalTokens, resp.EstimatedCost, resp.Latency.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&system, "system", "s", "", "System prompt")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Routing query (defaults to the prompt)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Completion token budget (0 = provider default)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the completion as it is generated")

	return cmd
}

type streamer interface {
	GenerateStream(ctx context.Context, req *llm.Request, query string) (<-chan llm.StreamChunk, error)
}

func streamCompletion(ctx context.Context, cmd *cobra.Command, client streamer, req *llm.Request, query string) error {
	chunks, err := client.GenerateStream(ctx, req, query)
	if err != nil {
		return fmt.Errorf("stream failed: %w", err)
	}

	out := cmd.OutOrStdout()
	var (
		usage *llm.Usage
		done  bool
	)
	for chunk := range chunks {
		if chunk.Err != nil {
			fmt.Fprintln(out)
			return fmt.Errorf("stream interrupted: %w", chunk.Err)
		}
		fmt.Fprint(out, chunk.Delta)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		done = done || chunk.Done
	}
	fmt.Fprintln(out)
	if !done {
		return fmt.Errorf("stream interrupted: %w", dispatch.ErrStreamTruncated)
	}

	if usage != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[%d tokens]\n", usage.TotalTokens)
	}
	return nil
}

func embedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text>",
		Short: "Create an embedding vector for text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			vec, err := client.CreateEmbedding(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]any{
					"embedding":  vec,
					"dimensions": len(vec),
				})
			}

			fmt.Fprintf(out, "Dimensions: %d\n", len(vec))
			preview := vec
			if len(preview) > 8 {
				preview = preview[:8]
			}
			parts := make([]string, len(preview))
			for i, v := range preview {
				parts[i] = fmt.Sprintf("%.4f", v)
			}
			suffix := ""
			if len(vec) > len(preview) {
				suffix = ", ..."
			}
			fmt.Fprintf(out, "Vector:     [%s%s]\n", strings.Join(parts, ", "), suffix)
			return nil
		},
	}
}
