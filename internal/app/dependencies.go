package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/payments"
	"github.com/vladislavdragonenkov/marketplace/internal/service/webhooks"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

// runtimeDependencies держит хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	uow             domain.UnitOfWork
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies выбирает PostgreSQL при заданном DSN, иначе in-memory хранилище.
func initRuntimeDependencies(ctx context.Context, cfg *config.Config, logger *log.Entry) (*runtimeDependencies, error) {
	if !cfg.UsePostgres() {
		logger.Warn("postgres dsn is not set, using in-memory storage")
		store := memory.NewStore()
		return &runtimeDependencies{
			uow:             store,
			outboxRepo:      store.Outbox(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	return &runtimeDependencies{
		uow:             store,
		outboxRepo:      store.Outbox(),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewSimpleChecker("postgres", store.Ping),
		closeFn:         store.Close,
	}, nil
}

// initPayments возвращает провайдера оплаты и парсер webhook.
// Без ключа Stripe используется FakeProvider; без секрета webhook парсер равен nil.
func initPayments(cfg config.StripeConfig, logger *log.Entry) (domain.PaymentProvider, webhooks.EventParser, error) {
	var provider domain.PaymentProvider
	if cfg.APIKey == "" {
		logger.Warn("stripe api key is not set, using fake payment provider")
		provider = payments.NewFakeProvider("")
	} else {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeConfig{
			APIKey:    cfg.APIKey,
			AccountID: cfg.AccountID,
			Logger:    logger.WithField("layer", "stripe"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init stripe provider: %w", err)
		}
		provider = stripeProvider
	}

	if cfg.WebhookSecret == "" {
		logger.Warn("stripe webhook secret is not set, webhook endpoint disabled")
		return provider, nil, nil
	}
	verifier, err := payments.NewStripeWebhookVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
	if err != nil {
		return nil, nil, fmt.Errorf("init stripe webhook verifier: %w", err)
	}
	return provider, verifier, nil
}
