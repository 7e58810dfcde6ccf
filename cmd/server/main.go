// 마음톡 - mood journal server
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	if err := newRootCommand(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger) *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:          "maumtalk",
		Short:        "Password-gated mood journal with an AI conversation partner.",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			loaded, err := config.Load()
			if err != nil {
				slog.Error("Failed to load configuration", "error", err)
				return err
			}
			*cfg = *loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	root.AddCommand(
		newServeCommand(cfg, logger),
		newExportCommand(cfg),
		newPurgeCommand(cfg),
		newStatsCommand(cfg),
	)
	return root
}
