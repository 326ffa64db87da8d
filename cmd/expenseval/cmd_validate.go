package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configPath string
	outputPath string
	verbose    bool
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <request.json>",
		Short: "Validate one AI compliance analysis",
		Long: `Validate a single AI-generated compliance analysis.

The request file is a JSON object with the analysis payload plus the source
material the judges compare it against:

  {
    "ai_response_json": "...",
    "country": "DE",
    "receipt_type": "restaurant",
    "icp_context": "...",
    "compliance_rules_json": "...",
    "extracted_data_json": "..."
  }`,
		Args: cobra.ExactArgs(1),
		RunE: validateCommandE,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: built-in three-judge panel)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSON file for the summary (default: stdout)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print per-dimension progress")

	return cmd
}

func validateCommandE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	req, err := loadRequest(args[0])
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	summary, err := orch.Validate(ctx, req)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return writeJSON(cfg.OutputPath(), summary)
}
