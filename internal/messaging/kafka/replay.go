package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 2 * time.Second
)

// ReplayConfig описывает один прогон переотправки из DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// Validate проверяет и дополняет значения по умолчанию.
func (c *ReplayConfig) Validate() error {
	if strings.TrimSpace(c.SourceTopic) == "" {
		c.SourceTopic = TopicDeadLetterQueue
	}
	if strings.TrimSpace(c.TargetTopic) == "" {
		c.TargetTopic = TopicListingEvents
	}
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle-timeout must be > 0")
	}
	return nil
}

// ReplayStats подводит итог прогона.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// Replayer читает DLQ и переотправляет исходные события в topic событий.
// В режиме dry-run сообщения только логируются.
type Replayer struct {
	client   offsetClient
	consumer partitionConsumerSource
	producer syncProducer
	closers  []func() error
	logger   *log.Entry
}

// NewReplayer подключается к кластеру. Producer создаётся только при execute.
func NewReplayer(brokers []string, execute bool, logger *log.Entry) (*Replayer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	r := &Replayer{
		client:   client,
		consumer: saramaConsumerAdapter{consumer: rawConsumer},
		closers:  []func() error{rawConsumer.Close, client.Close},
		logger:   logger,
	}
	if !execute {
		return r, nil
	}

	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig("marketplace-dlq-replay"))
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	r.producer = producer
	r.closers = append([]func() error{producer.Close}, r.closers...)
	return r, nil
}

// Close освобождает соединения.
func (r *Replayer) Close() error {
	var firstErr error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run проходит партиции source topic по порядку, пока не наберёт Limit сообщений.
func (r *Replayer) Run(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var total ReplayStats
	if err := cfg.Validate(); err != nil {
		return total, err
	}
	if r.client == nil || r.consumer == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.Execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	r.logger.WithFields(log.Fields{
		"source_topic": cfg.SourceTopic,
		"target_topic": cfg.TargetTopic,
		"limit":        cfg.Limit,
		"execute":      cfg.Execute,
		"from_newest":  cfg.FromNewest,
	}).Info("starting dlq replay")

	partitions, err := r.client.Partitions(cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", cfg.SourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.Processed >= cfg.Limit {
			break
		}
		stats, err := r.processPartition(ctx, cfg, partition, cfg.Limit-total.Processed)
		total.Processed += stats.Processed
		total.Replayed += stats.Replayed
		total.Skipped += stats.Skipped
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func (r *Replayer) processPartition(ctx context.Context, cfg ReplayConfig, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.FromNewest {
		startOffset = newest - int64(limit)
		if startOffset < oldest {
			startOffset = oldest
		}
	}

	pc, err := r.consumer.ConsumePartition(cfg.SourceTopic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idleTimer := time.NewTimer(cfg.IdleTimeout)
	defer idleTimer.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-pc.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return stats, nil
			}

			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.IdleTimeout)

			if msg.Offset >= newest {
				return stats, nil
			}

			stats.Processed++
			replay, err := extractReplayMessage(msg.Value, cfg.TargetTopic)
			if err != nil {
				stats.Skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}

			if cfg.Execute {
				if err := r.publish(replay); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
			} else {
				r.logger.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": replay.topic,
					"key":          replay.key,
				}).Info("dlq replay candidate")
			}
			stats.Replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idleTimer.C:
			return stats, nil
		}
	}

	return stats, nil
}

type replayMessage struct {
	topic     string
	key       string
	eventType string
	value     []byte
}

func (r *Replayer) publish(msg replayMessage) error {
	now := time.Now().UTC()
	_, _, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: now,
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(msg.eventType)},
			{Key: []byte(HeaderReplayedAt), Value: []byte(now.Format(time.RFC3339Nano))},
		},
	})
	return err
}

// extractReplayMessage восстанавливает исходный конверт из DLQ-конверта outbox worker'а.
func extractReplayMessage(value []byte, targetTopic string) (replayMessage, error) {
	envelope, err := ParseEnvelope(value)
	if err != nil {
		return replayMessage{}, err
	}
	if len(envelope.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("dlq envelope has no payload")
	}

	var dlq domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &dlq); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(dlq.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := Envelope{
		ID:            firstNonEmpty(dlq.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dlq.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dlq.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dlq.EventType, envelope.EventType),
		Payload:       dlq.Payload,
		OccurredAt:    envelope.OccurredAt,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		topic:     targetTopic,
		key:       replay.Key(),
		eventType: replay.EventType,
		value:     encoded,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
