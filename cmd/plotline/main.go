package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/plotline-ai/plotline/internal/api"
	"github.com/plotline-ai/plotline/internal/dataset"
	"github.com/plotline-ai/plotline/internal/llm"
	"github.com/plotline-ai/plotline/internal/pipeline"
	"github.com/plotline-ai/plotline/internal/render"
	"github.com/plotline-ai/plotline/internal/session"
)

var llmOpts = llm.Options{
	MaxTokens:   4096,
	Temperature: 0.2,
}

func main() {
	// Missing .env is fine; the environment may carry the keys directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "plotline",
		Short: "Conversational dashboards over tabular data",
	}
	root.PersistentFlags().StringVar(&llmOpts.Provider, "provider", "anthropic", "LLM provider (anthropic, openai, google)")
	root.PersistentFlags().StringVar(&llmOpts.Model, "model", "claude-sonnet-4-20250514", "model name")
	root.PersistentFlags().IntVar(&llmOpts.MaxTokens, "max-tokens", llmOpts.MaxTokens, "response token limit")
	root.PersistentFlags().Float64Var(&llmOpts.Temperature, "temperature", llmOpts.Temperature, "sampling temperature")
	root.PersistentFlags().BoolVar(&llmOpts.Debug, "debug", false, "dump prompts to stderr")

	root.AddCommand(newServeCmd(), newDashboardCmd(), newInspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := api.NewServer(session.NewStore(), pipeline.Options{LLM: llmOpts})
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func newDashboardCmd() *cobra.Command {
	var (
		planFile   string
		prompt     string
		asMarkdown bool
		noForecast bool
	)
	cmd := &cobra.Command{
		Use:   "dashboard <dataset>",
		Short: "Build a dashboard for a dataset file and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveDataset(args[0])
			if err != nil {
				return err
			}
			ds, schema, profiles, err := pipeline.Prepare(path)
			if err != nil {
				return err
			}
			store := session.NewStore()
			id := store.Create(path, ds, schema, profiles)
			sess, err := store.Get(id)
			if err != nil {
				return err
			}

			opts := pipeline.Options{LLM: llmOpts, SkipForecast: noForecast}
			if planFile != "" {
				// A provided plan makes the run fully offline.
				b, err := os.ReadFile(planFile)
				if err != nil {
					return fmt.Errorf("read plan: %w", err)
				}
				opts.PlanJSON = string(b)
			}

			report, err := pipeline.Run(cmd.Context(), sess, prompt, opts)
			if err != nil {
				return err
			}
			if asMarkdown {
				fmt.Fprint(cmd.OutOrStdout(), render.RenderMarkdown(report))
				return nil
			}
			b, err := render.RenderJSON(report)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "", "use a plan JSON file instead of calling the LLM")
	cmd.Flags().StringVar(&prompt, "prompt", "Give me an overview of this data", "analysis request")
	cmd.Flags().BoolVar(&asMarkdown, "markdown", false, "print a Markdown summary instead of JSON")
	cmd.Flags().BoolVar(&noForecast, "no-forecast", false, "skip trend forecasting")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <dataset>",
		Short: "Print the cleaned dataset's column schema and profiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveDataset(args[0])
			if err != nil {
				return err
			}
			ds, schema, profiles, err := pipeline.Prepare(path)
			if err != nil {
				return err
			}
			out := map[string]any{
				"rows":     ds.NumRows(),
				"columns":  ds.Columns(),
				"schema":   schema,
				"profiles": profiles,
			}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

// resolveDataset maps a directory argument to the tabular file inside it;
// plain file paths pass through unchanged.
func resolveDataset(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return dataset.FindFile(arg)
	}
	return arg, nil
}
