package app

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer(config.KafkaConfig{Brokers: []string{"", " "}}, logger)
	if err != nil {
		t.Errorf("expected no error for empty brokers, got %v", err)
	}
	if producer != nil {
		t.Error("expected nil producer for empty brokers")
	}
}

func TestInitKafkaProducer_InvalidBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	// Несуществующий broker
	producer, err := initKafkaProducer(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, ClientID: "marketplace-test"}, logger)
	if err == nil {
		t.Error("expected error for invalid brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestNewOutboxWorker_DisabledWithoutProducer(t *testing.T) {
	cfg := &config.Config{}
	if worker := newOutboxWorker(memory.NewStore().Outbox(), nil, cfg, log.WithField("test", "outbox")); worker != nil {
		t.Fatal("expected nil worker without kafka producer")
	}
}

func TestCloseKafkaProducer_NilProducer(_ *testing.T) {
	// Не должно паниковать
	closeKafkaProducer(nil, log.WithField("test", "kafka"))
}
