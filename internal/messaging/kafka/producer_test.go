package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		envelope, err := ParseEnvelope(val)
		if err != nil {
			return err
		}
		if envelope.AggregateID != "listing-123" || envelope.EventType != "listing.activated" {
			return fmt.Errorf("unexpected envelope: %+v", envelope)
		}
		return nil
	})

	event := Envelope{
		ID:            "outbox-1",
		AggregateType: "listing",
		AggregateID:   "listing-123",
		EventType:     "listing.activated",
		Payload:       json.RawMessage(`{"status":"active"}`),
	}

	err := producer.PublishEvent(context.Background(), TopicListingEvents, event.Key(), event, map[string]string{
		HeaderEventType: event.EventType,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatalf("failed to close mock producer: %v", err)
	}
}

func TestProducer_PublishEventError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishRaw(context.Background(), TopicListingEvents, "listing-1", []byte(`{}`), nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected wrapped ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatalf("failed to close mock producer: %v", err)
	}
}

func TestProducer_CanceledContextSkipsSend(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := producer.PublishRaw(ctx, TopicListingEvents, "listing-1", []byte(`{}`), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatalf("no message expected: %v", err)
	}
}

func TestProducer_PingWithoutClient(t *testing.T) {
	producer := &Producer{
		producer: mocks.NewSyncProducer(t, nil),
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	if err := producer.Ping(context.Background()); err != nil {
		t.Fatalf("ping without client must succeed, got %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	if _, err := NewProducer(nil, "marketplace", nil); err == nil {
		t.Fatal("expected error for empty broker list")
	}
}

func TestNewProducerConfig(t *testing.T) {
	cfg := NewProducerConfig("marketplace-test")
	if cfg.ClientID != "marketplace-test" {
		t.Fatalf("unexpected client id %q", cfg.ClientID)
	}
	if !cfg.Producer.Idempotent || cfg.Net.MaxOpenRequests != 1 {
		t.Fatal("producer must be idempotent with a single in-flight request")
	}
	if cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("unexpected acks %v", cfg.Producer.RequiredAcks)
	}
}
