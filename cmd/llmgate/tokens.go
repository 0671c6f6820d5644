package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmgate/llmgate/adapters/sqlite"
	"github.com/llmgate/llmgate/app"
	"github.com/llmgate/llmgate/config"
	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/ports"
)

// tokenPrefix marks gateway tokens so they are recognizable in client
// configs without revealing anything about the holder.
const tokenPrefix = "gw_"

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage gateway tokens",
	}
	cmd.AddCommand(tokensCreateCmd())
	cmd.AddCommand(tokensRevokeCmd())
	cmd.AddCommand(tokensListCmd())
	return cmd
}

// openTokenStore opens the configured database for CLI token operations.
func openTokenStore() (*sqlite.TokenStore, func(), error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return sqlite.NewTokenStore(db), func() { db.Close() }, nil
}

func tokensCreateCmd() *cobra.Command {
	var userID, plan, billingMode, effectivePlan string
	var effectiveDays int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a gateway token (the raw token is printed once and never stored)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			mode := principal.BillingMode(billingMode)
			if mode != principal.BillingSubscription && mode != principal.BillingPrepaid {
				return fmt.Errorf("--billing-mode must be subscription or prepaid, got %q", billingMode)
			}

			store, closeDB, err := openTokenStore()
			if err != nil {
				return err
			}
			defer closeDB()

			raw, err := newToken()
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			rec := ports.TokenRecord{
				Digest: app.Digest(raw),
				Principal: principal.Principal{
					UserID:      userID,
					Plan:        plan,
					BillingMode: mode,
				},
				CreatedAt: now,
			}
			if effectivePlan != "" {
				rec.Principal.EffectivePlan = effectivePlan
				rec.Principal.EffectivePlanUntil = now.AddDate(0, 0, effectiveDays)
			}

			if err := store.Create(cmd.Context(), rec); err != nil {
				return fmt.Errorf("create token: %w", err)
			}

			fmt.Printf("Token created for user %s (plan %s, billing %s)\n", userID, plan, mode)
			fmt.Printf("\n  %s\n\n", raw)
			fmt.Println("Store this token now. It cannot be recovered; only its digest is kept.")
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID the token belongs to")
	cmd.Flags().StringVar(&plan, "plan", principal.DefaultPlan, "Plan name")
	cmd.Flags().StringVar(&billingMode, "billing-mode", string(principal.BillingSubscription), "Billing mode: subscription or prepaid")
	cmd.Flags().StringVar(&effectivePlan, "effective-plan", "", "Temporary plan override (grace window)")
	cmd.Flags().IntVar(&effectiveDays, "effective-days", 30, "Days the plan override stays in effect")

	return cmd
}

func tokensRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token-or-digest>",
		Short: "Revoke a gateway token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openTokenStore()
			if err != nil {
				return err
			}
			defer closeDB()

			digest := args[0]
			if !isDigest(digest) {
				digest = app.Digest(digest)
			}

			if err := store.Revoke(cmd.Context(), digest, time.Now().UTC()); err != nil {
				return fmt.Errorf("revoke: %w", err)
			}
			fmt.Printf("Revoked %s\n", digest[:8])
			return nil
		},
	}
}

func tokensListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List gateway tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openTokenStore()
			if err != nil {
				return err
			}
			defer closeDB()

			recs, err := store.List(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIGEST\tUSER\tPLAN\tBILLING\tCREATED\tREVOKED")
			for _, r := range recs {
				revoked := "-"
				if r.RevokedAt != nil {
					revoked = r.RevokedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Digest[:8], r.Principal.UserID, r.Principal.Plan,
					r.Principal.BillingMode, r.CreatedAt.Format(time.RFC3339), revoked)
			}
			return w.Flush()
		},
	}
}

// newToken generates an opaque gateway token from 32 random bytes.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(buf), nil
}

// isDigest reports whether s looks like a hex SHA-256 digest.
func isDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
