package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/config"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/orchestration"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/validation"
)

// loadConfig resolves the config file (when given), environment overrides, and
// command-line flags into one Config.
func loadConfig(ctx context.Context) (*config.Config, error) {
	var spec *config.Spec
	if configPath != "" {
		loaded, err := config.LoadSpec(configPath)
		if err != nil {
			return nil, err
		}
		spec = loaded
	}

	env, err := config.LoadEnv(ctx)
	if err != nil {
		return nil, err
	}

	return config.New(spec,
		config.WithEnv(env),
		config.WithVerbose(verbose),
		config.WithOutputPath(outputPath),
	), nil
}

// buildOrchestrator assembles the judge panel and the orchestrator from the
// resolved configuration, attaching a progress printer in verbose mode.
func buildOrchestrator(cfg *config.Config) (*orchestration.Orchestrator, error) {
	judges, err := cfg.BuildJudges()
	if err != nil {
		return nil, fmt.Errorf("building judge panel: %w", err)
	}

	opts := cfg.OrchestratorOptions()
	if cfg.Verbose() {
		opts = append(opts, orchestration.WithProgressListener(printProgress))
	}
	return orchestration.New(judges, opts...)
}

// printProgress writes one line per lifecycle event to stderr.
func printProgress(e validation.ProgressEvent) {
	switch e.Kind {
	case validation.ProgressDimensionStarted:
		fmt.Fprintf(os.Stderr, "→ %s\n", e.Dimension)
	case validation.ProgressJudgeCompleted:
		status := "ok"
		if !e.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(os.Stderr, "  judge %s on %s: %s\n", e.Judge, e.Dimension, status)
	case validation.ProgressDimensionCompleted:
		status := "ok"
		if !e.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(os.Stderr, "← %s: %s\n", e.Dimension, status)
	case validation.ProgressFallbackTriggered:
		fmt.Fprintln(os.Stderr, "! too few dimensions succeeded, falling back to sequential")
	}
}

// loadRequest reads one validation request from a JSON file.
func loadRequest(path string) (*validation.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}
	var req validation.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing request file %s: %w", path, err)
	}
	return &req, nil
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}
