package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/config"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/diary"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/store"
)

// withStore opens the database for a one-shot command.
func withStore(ctx context.Context, cfg *config.Config, fn func(store.Repository) error) error {
	repo, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	return fn(repo)
}

func newExportCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the plain-text backup of every entry and trashed record.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), cfg, func(repo store.Repository) error {
				ctx := cmd.Context()
				entries, err := repo.ListEntries(ctx)
				if err != nil {
					return fmt.Errorf("list entries: %w", err)
				}
				trashed, err := repo.ListTrashed(ctx)
				if err != nil {
					return fmt.Errorf("list trash: %w", err)
				}

				now := cfg.Clock()()
				text := diary.Export(entries, trashed, now)
				if output == "" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
					return err
				}
				if output == "." {
					output = diary.ExportFilename(now)
				}
				if err := os.WriteFile(output, []byte(text), 0o600); err != nil {
					return fmt.Errorf("write backup: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", output)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `write to this file instead of stdout ("." uses the default backup name)`)
	return cmd
}

func newPurgeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete trashed records whose 30-day retention has ended.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), cfg, func(repo store.Repository) error {
				n, err := repo.PurgeExpired(cmd.Context(), cfg.Clock()())
				if err != nil {
					return fmt.Errorf("purge expired: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired record(s)\n", n)
				return err
			})
		},
	}
}

type statsReport struct {
	Streak int                `json:"streak"`
	Stats  diary.EmotionStats `json:"stats"`
}

func newStatsCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the current streak and emotion statistics as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), cfg, func(repo store.Repository) error {
				entries, err := repo.ListEntries(cmd.Context())
				if err != nil {
					return fmt.Errorf("list entries: %w", err)
				}
				dates := make([]string, 0, len(entries))
				for _, e := range entries {
					dates = append(dates, e.Date)
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statsReport{
					Streak: diary.CalculateConsecutiveDays(dates, cfg.Clock()()),
					Stats:  diary.GenerateEmotionStats(entries),
				})
			})
		},
	}
}
