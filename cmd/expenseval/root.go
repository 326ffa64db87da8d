package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenseval",
		Short: "Expenseval - validate AI expense-compliance analyses with LLM judge panels",
		Long: `Expenseval scores AI-generated expense-receipt compliance analyses.

A panel of LLM judges evaluates each analysis along six fixed dimensions
(factual grounding, knowledge-base adherence, compliance accuracy, issue
categorization, recommendation validity, hallucination detection) and the
verdicts are aggregated into one confidence score with a reliability label.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newBatchCommand())
	cmd.AddCommand(newTuneCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
