package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

func (c *cli) dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay the outbox dead letter queue",
	}

	var (
		brokersRaw string
		cfg        kafka.ReplayConfig
	)
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Republish DLQ messages to the listing events topic (dry-run by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if brokersRaw == "" {
				brokersRaw = os.Getenv("KAFKA_BROKERS")
			}
			brokers := splitList(brokersRaw)
			if len(brokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS (or --brokers) is required")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			replayer, err := c.newReplayer(brokers, cfg.Execute, c.logger.WithField("layer", "dlq-replay"))
			if err != nil {
				return err
			}
			defer func() {
				if err := replayer.Close(); err != nil {
					c.logger.WithError(err).Warn("failed to close replayer")
				}
			}()

			stats, err := replayer.Run(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("dlq replay failed: %w", err)
			}

			c.logger.WithFields(log.Fields{
				"processed": stats.Processed,
				"replayed":  stats.Replayed,
				"skipped":   stats.Skipped,
				"execute":   cfg.Execute,
			}).Info("dlq replay finished")
			mode := "dry-run"
			if cfg.Execute {
				mode = "execute"
			}
			_, _ = fmt.Fprintf(c.out, "dlq replay (%s): processed=%d replayed=%d skipped=%d\n",
				mode, stats.Processed, stats.Replayed, stats.Skipped)
			return nil
		},
	}

	flags := replay.Flags()
	flags.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flags.StringVar(&cfg.SourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flags.StringVar(&cfg.TargetTopic, "target-topic", kafka.TopicListingEvents, "target topic for replay")
	flags.IntVar(&cfg.Limit, "limit", kafka.DefaultReplayLimit, "max number of messages to scan/replay")
	flags.BoolVar(&cfg.Execute, "execute", false, "execute replay; default is dry-run")
	flags.BoolVar(&cfg.FromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flags.DurationVar(&cfg.IdleTimeout, "idle-timeout", kafka.DefaultReplayIdleTimeout, "idle timeout per partition")

	cmd.AddCommand(replay)
	return cmd
}
