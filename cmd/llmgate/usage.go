package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmgate/llmgate/adapters/sqlite"
	"github.com/llmgate/llmgate/config"
	"github.com/llmgate/llmgate/domain/principal"
)

func usageCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show month-to-date usage for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := config.LoadWithFallback(configPath)
			if err != nil {
				return err
			}
			db, err := sqlite.Open(cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			store := sqlite.NewUsageStore(db)
			now := time.Now().UTC()
			summary, err := store.Summary(cmd.Context(), userID, principal.MonthStart(now), now)
			if err != nil {
				return err
			}

			fmt.Printf("Usage for %s since %s\n", userID, summary.PeriodStart.Format("2006-01-02"))
			fmt.Printf("  Requests:       %d (%d errors)\n", summary.RequestCount, summary.ErrorCount)
			fmt.Printf("  Input tokens:   %d\n", summary.InputTokens)
			fmt.Printf("  Output tokens:  %d\n", summary.OutputTokens)
			fmt.Printf("  Cache creation: %d\n", summary.CacheCreation)
			fmt.Printf("  Cache read:     %d\n", summary.CacheRead)
			fmt.Printf("  Cost:           $%.6f\n", float64(summary.CostMicrodollars)/1e6)
			fmt.Printf("  Credits:        %d\n", summary.Credits)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID to summarize")
	return cmd
}
