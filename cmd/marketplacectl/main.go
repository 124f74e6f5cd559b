package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// migrator описывает операции схемы, которые выполняет CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
	Close() error
}

// replayRunner повторно публикует сообщения из DLQ.
type replayRunner interface {
	Run(ctx context.Context, cfg kafka.ReplayConfig) (kafka.ReplayStats, error)
	Close() error
}

type cli struct {
	out         io.Writer
	logger      *log.Entry
	openStore   func(ctx context.Context, dsn string) (migrator, error)
	newReplayer func(brokers []string, execute bool, logger *log.Entry) (replayRunner, error)
}

func newCLI(out io.Writer) *cli {
	return &cli{
		out:    out,
		logger: log.WithField("component", "marketplacectl"),
		openStore: func(ctx context.Context, dsn string) (migrator, error) {
			return postgres.Open(ctx, dsn)
		},
		newReplayer: func(brokers []string, execute bool, logger *log.Entry) (replayRunner, error) {
			return kafka.NewReplayer(brokers, execute, logger)
		},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketplacectl",
		Short:         "Operational tooling for the marketplace service",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)

	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.dlqCmd())
	return root
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newCLI(os.Stdout).rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
