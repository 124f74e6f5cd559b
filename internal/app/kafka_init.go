package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// initKafkaProducer инициализирует Kafka producer, если заданы брокеры.
// Возвращает nil, nil, если брокеры не заданы.
func initKafkaProducer(cfg config.KafkaConfig, logger *log.Entry) (*kafka.Producer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, cfg.ClientID, logger.WithField("layer", "kafka"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// newOutboxWorker собирает publisher событий и DLQ поверх producer.
// Без producer события остаются в outbox до появления брокера.
func newOutboxWorker(repo domain.OutboxRepository, producer *kafka.Producer, cfg *config.Config, logger *log.Entry) *outbox.Worker {
	if producer == nil || repo == nil {
		logger.Warn("kafka is not configured, outbox worker disabled")
		return nil
	}

	return outbox.NewWorker(
		repo,
		kafka.NewOutboxPublisher(producer, cfg.Kafka.Topic),
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.Kafka.DLQTopic)),
		outbox.WithMetrics(metrics.NewOutboxMetrics(nil)),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithRetryBaseDelay(cfg.Outbox.RetryDelay),
	)
}

// closeKafkaProducer закрывает Kafka producer, если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
