// Package webhooks принимает уведомления платёжного провайдера и передаёт
// подтверждённые оплаты в сервис объявлений.
package webhooks

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/marketplace"
)

// Outcome описывает итог обработки доставки для метрик и ответа.
type Outcome string

const (
	// Оплата применена к объявлению.
	OutcomeApplied Outcome = "applied"
	// Событие не требует действий.
	OutcomeIgnored Outcome = "ignored"
	// Подпись не прошла проверку.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed — применение оплаты завершилось ошибкой; провайдер повторит доставку.
	OutcomeFailed Outcome = "failed"
)

// EventParser проверяет подпись и разбирает событие.
type EventParser interface {
	ParseEvent(payload []byte, signatureHeader string) (domain.PaymentEvent, error)
}

// PaymentHandler применяет подтверждённую оплату.
type PaymentHandler interface {
	HandlePaymentConfirmed(ctx context.Context, confirmation domain.PaymentConfirmation) (marketplace.Activation, error)
}

// Dispatcher связывает проверку webhook и обработку оплаты.
// Повторные доставки одного события не отсекаются.
type Dispatcher struct {
	parser  EventParser
	handler PaymentHandler
	logger  *log.Entry
	metrics *metrics.MarketplaceMetrics
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher(parser EventParser, handler PaymentHandler, logger *log.Entry, m *metrics.MarketplaceMetrics) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "webhooks")
	}
	return &Dispatcher{
		parser:  parser,
		handler: handler,
		logger:  logger,
		metrics: m,
	}
}

// Dispatch обрабатывает одну доставку. Ошибка подписи оборачивает domain.ErrWebhookSignature;
// прочие ошибки означают, что событие нужно доставить повторно.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	event, err := d.parser.ParseEvent(payload, signatureHeader)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, domain.ErrWebhookSignature) {
			outcome = OutcomeRejected
		}
		d.metrics.RecordWebhook(string(outcome))
		d.logger.WithError(err).Warn("webhook payload rejected")
		return outcome, err
	}

	entry := d.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if event.Confirmation == nil {
		d.metrics.RecordWebhook(string(OutcomeIgnored))
		entry.Debug("webhook event ignored")
		return OutcomeIgnored, nil
	}

	activation, err := d.handler.HandlePaymentConfirmed(ctx, *event.Confirmation)
	if err != nil {
		d.metrics.RecordWebhook(string(OutcomeFailed))
		entry.WithError(err).Error("failed to apply confirmed payment")
		return OutcomeFailed, err
	}

	d.metrics.RecordWebhook(string(OutcomeApplied))
	entry.WithFields(log.Fields{
		"listing_id": activation.Listing.ID,
		"order_id":   activation.Order.ID,
	}).Info("payment applied")
	return OutcomeApplied, nil
}
