package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/orchestration"
)

func newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <jobs.json>",
		Short: "Validate a batch of analyses concurrently",
		Long: `Validate a batch of AI compliance analyses.

The jobs file is a JSON array of {"id": "...", "request": {...}} entries.
Jobs run concurrently under the job limiter; a failed job is logged and
omitted from the output, identified by its missing id.`,
		Args: cobra.ExactArgs(1),
		RunE: batchCommandE,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: built-in three-judge panel)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSON file for the summaries (default: stdout)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print per-dimension progress")

	return cmd
}

func batchCommandE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading jobs file: %w", err)
	}
	var jobs []orchestration.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("parsing jobs file %s: %w", args[0], err)
	}
	if len(jobs) == 0 {
		return fmt.Errorf("jobs file %s contains no jobs", args[0])
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	summaries := orch.ValidateBatch(ctx, jobs)
	fmt.Fprintf(os.Stderr, "%d of %d jobs completed\n", len(summaries), len(jobs))

	return writeJSON(cfg.OutputPath(), summaries)
}
