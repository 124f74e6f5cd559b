package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultMigrateTimeout = 30 * time.Second

func (c *cli) migrateCmd() *cobra.Command {
	var (
		dsn     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL schema migrations",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: MARKETPLACE_POSTGRES_DSN)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultMigrateTimeout, "overall timeout")

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, store migrator) error) error {
		resolved := strings.TrimSpace(dsn)
		if resolved == "" {
			resolved = strings.TrimSpace(os.Getenv("MARKETPLACE_POSTGRES_DSN"))
		}
		if resolved == "" {
			return fmt.Errorf("MARKETPLACE_POSTGRES_DSN (or --dsn) is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		store, err := c.openStore(ctx, resolved)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer store.Close()

		return fn(ctx, store)
	}

	var upSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store migrator) error {
				if err := store.MigrateUp(ctx, upSteps); err != nil {
					return fmt.Errorf("migrate up failed: %w", err)
				}
				return c.printStatus(ctx, store, "migrate up ok")
			})
		},
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "number of migrations to apply (0 = all)")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if downSteps <= 0 {
				downSteps = 1
			}
			return withStore(cmd, func(ctx context.Context, store migrator) error {
				if err := store.MigrateDown(ctx, downSteps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				return c.printStatus(ctx, store, "migrate down ok")
			})
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store migrator) error {
				return c.printStatus(ctx, store, "migration status")
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func (c *cli) printStatus(ctx context.Context, store migrator, prefix string) error {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(c.out, "%s: version=%d applied=%d\n", prefix, version, count)
	return nil
}
