package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/ensemble"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/judge"
)

var (
	tuneTrials int
	tuneSeed   int64
	tuneBeta   float64
)

// tuneSample is one labeled example in the tuning dataset.
type tuneSample struct {
	Prompt   string `json:"prompt"`
	Expected string `json:"expected"`
}

func newTuneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune <dataset.json>",
		Short: "Tune ensemble weights and threshold against labeled examples",
		Long: `Tune the judge ensemble against a labeled dataset.

The dataset file is a JSON array of {"prompt": "...", "expected": "..."}
entries. The first configured judge generates a response per prompt, every
judge scores it, responses are graded by case-insensitive containment of the
expected answer, and the weight vector and decision threshold are optimized
(ROC-AUC random search, then a threshold sweep).`,
		Args: cobra.ExactArgs(1),
		RunE: tuneCommandE,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: built-in three-judge panel)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSON file for the tuned config (default: stdout)")
	cmd.Flags().IntVar(&tuneTrials, "trials", ensemble.DefaultTrials, "Random-search trials for the weight vector")
	cmd.Flags().Int64Var(&tuneSeed, "seed", 1, "Random seed for reproducible tuning")
	cmd.Flags().Float64Var(&tuneBeta, "beta", 0, "F-beta for the threshold sweep (0 = plain accuracy)")

	return cmd
}

func tuneCommandE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading dataset file: %w", err)
	}
	var samples []tuneSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return fmt.Errorf("parsing dataset file %s: %w", args[0], err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("dataset file %s contains no samples", args[0])
	}

	clients, err := cfg.BuildJudges()
	if err != nil {
		return fmt.Errorf("building judge panel: %w", err)
	}

	components := make([]ensemble.Scorer, 0, len(clients))
	for i, client := range clients {
		j, err := judge.New(fmt.Sprintf("judge-%d-%s", i, client.ModelName()), client, nil)
		if err != nil {
			return err
		}
		components = append(components, ensemble.FromJudge(j))
	}

	ens, err := ensemble.New(components, ensemble.WithGenerator(clients[0]))
	if err != nil {
		return err
	}

	prompts := make([]string, len(samples))
	expected := make([]string, len(samples))
	for i, s := range samples {
		prompts[i] = s.Prompt
		expected[i] = s.Expected
	}

	tuner := ensemble.NewTuner(
		ensemble.WithTrials(tuneTrials),
		ensemble.WithSeed(tuneSeed),
		ensemble.WithFBeta(tuneBeta),
	)
	tuned, err := ens.Tune(ctx, prompts, expected, nil, tuner)
	if err != nil {
		return fmt.Errorf("tuning failed: %w", err)
	}

	return writeJSON(cfg.OutputPath(), tuned)
}
