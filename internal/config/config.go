package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// EnvConfigPath задаёт переменную окружения с путём к YAML-конфигу.
const EnvConfigPath = "MARKETPLACE_CONFIG_PATH"

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"MARKETPLACE_HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"MARKETPLACE_HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"MARKETPLACE_HTTP_WRITE_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MARKETPLACE_HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr" env:"MARKETPLACE_GRPC_ADDR" env-default:":50051"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"MARKETPLACE_METRICS_ADDR" env-default:":9090"`
}

// PostgresConfig: пустой DSN включает in-memory хранилище.
type PostgresConfig struct {
	DSN         string `yaml:"dsn" env:"MARKETPLACE_POSTGRES_DSN"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"MARKETPLACE_POSTGRES_AUTO_MIGRATE" env-default:"true"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	ClientID string   `yaml:"client_id" env:"KAFKA_CLIENT_ID" env-default:"marketplace"`
	Topic    string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"marketplace.listing.events"`
	DLQTopic string   `yaml:"dlq_topic" env:"KAFKA_DLQ_TOPIC" env-default:"marketplace.dlq"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"MARKETPLACE_OUTBOX_POLL_INTERVAL" env-default:"1s"`
	BatchSize    int           `yaml:"batch_size" env:"MARKETPLACE_OUTBOX_BATCH_SIZE" env-default:"100"`
	MaxAttempts  int           `yaml:"max_attempts" env:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" env-default:"3"`
	RetryDelay   time.Duration `yaml:"retry_delay" env:"MARKETPLACE_OUTBOX_RETRY_DELAY" env-default:"50ms"`
}

// StripeConfig: без APIKey используется фейковый провайдер для локальной разработки.
type StripeConfig struct {
	APIKey           string        `yaml:"api_key" env:"STRIPE_API_KEY"`
	WebhookSecret    string        `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	AccountID        string        `yaml:"account_id" env:"STRIPE_ACCOUNT_ID"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance" env:"STRIPE_WEBHOOK_TOLERANCE" env-default:"5m"`
}

// CheckoutConfig содержит адреса возврата; {listingId} заменяется на идентификатор объявления.
type CheckoutConfig struct {
	SuccessURL string `yaml:"success_url" env:"MARKETPLACE_CHECKOUT_SUCCESS_URL" env-default:"http://localhost:3000/listings/{listingId}?checkout=success"`
	CancelURL  string `yaml:"cancel_url" env:"MARKETPLACE_CHECKOUT_CANCEL_URL" env-default:"http://localhost:3000/listings/{listingId}?checkout=cancel"`
}

type CatalogConfig struct {
	Path string `yaml:"path" env:"MARKETPLACE_CATALOG_PATH" env-default:"configs/catalog.yaml"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_TRACES_SAMPLE_RATIO" env-default:"1"`
}

type IdempotencyConfig struct {
	TTL             time.Duration `yaml:"ttl" env:"MARKETPLACE_IDEMPOTENCY_TTL" env-default:"24h"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"MARKETPLACE_IDEMPOTENCY_CLEANUP_INTERVAL" env-default:"1m"`
	CleanupBatch    int           `yaml:"cleanup_batch" env:"MARKETPLACE_IDEMPOTENCY_CLEANUP_BATCH" env-default:"500"`
}

// Config описывает полную конфигурацию сервиса.
type Config struct {
	Env         string            `yaml:"env" env:"MARKETPLACE_ENV" env-default:"local"`
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Outbox      OutboxConfig      `yaml:"outbox"`
	Stripe      StripeConfig      `yaml:"stripe"`
	Checkout    CheckoutConfig    `yaml:"checkout"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
}

// Load читает .env (если есть), затем YAML по path и переменные окружения.
// Отсутствующий файл не является ошибкой: конфигурация берётся из окружения.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
		return &cfg, cfg.Validate()
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.WithField("path", path).Warn("config file not found, loading from environment only")
		cfg = Config{}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
	}
	return &cfg, cfg.Validate()
}

// MustLoad загружает конфигурацию по MARKETPLACE_CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	cfg, err := Load(os.Getenv(EnvConfigPath))
	if err != nil {
		log.WithError(err).Fatal("cannot load config")
	}
	return cfg
}

// Validate проверяет значения, которые нельзя выразить тегами.
func (c *Config) Validate() error {
	if c.Stripe.APIKey != "" && c.Stripe.WebhookSecret == "" {
		return errors.New("stripe webhook secret is required when stripe api key is set")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch size must be positive, got %d", c.Outbox.BatchSize)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0,1], got %v", c.Tracing.SampleRatio)
	}
	switch strings.ToLower(c.Logger.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Logger.Format)
	}
	return nil
}

// UsePostgres сообщает, настроено ли постоянное хранилище.
func (c *Config) UsePostgres() bool {
	return strings.TrimSpace(c.Postgres.DSN) != ""
}

// KafkaEnabled сообщает, заданы ли брокеры Kafka.
func (c *Config) KafkaEnabled() bool {
	for _, broker := range c.Kafka.Brokers {
		if strings.TrimSpace(broker) != "" {
			return true
		}
	}
	return false
}

// SetupLogger настраивает формат и уровень logrus.
func SetupLogger(cfg LoggerConfig) error {
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)
	return nil
}
