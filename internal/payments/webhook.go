package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Типы событий Stripe, после которых объявление можно активировать.
const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"

	paymentStatusPaid = "paid"
)

// StripeWebhookVerifier проверяет подпись Stripe-Signature и разбирает событие.
type StripeWebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewStripeWebhookVerifier создаёт верификатор с секретом endpoint.
// tolerance <= 0 означает значение по умолчанию stripe-go.
func NewStripeWebhookVerifier(secret string, tolerance time.Duration) (*StripeWebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookVerifier{secret: secret, tolerance: tolerance}, nil
}

// ParseEvent проверяет подпись над сырым телом и возвращает событие.
// Confirmation заполняется только для оплаченных checkout-сессий.
func (v *StripeWebhookVerifier) ParseEvent(payload []byte, signatureHeader string) (domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", domain.ErrWebhookSignature, err)
	}

	result := domain.PaymentEvent{ID: event.ID, Type: string(event.Type)}

	switch result.Type {
	case EventCheckoutSessionCompleted, EventCheckoutSessionAsyncPaymentSucceeded:
	default:
		return result, nil
	}

	if event.Data == nil {
		return domain.PaymentEvent{}, fmt.Errorf("stripe: event %s has no data", event.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("stripe: decode checkout session from event %s: %w", event.ID, err)
	}
	if string(session.PaymentStatus) != paymentStatusPaid {
		return result, nil
	}

	paymentID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		paymentID = session.PaymentIntent.ID
	}

	result.Confirmation = &domain.PaymentConfirmation{
		EventID:       event.ID,
		PaymentID:     paymentID,
		PaymentMethod: MethodStripe,
		Metadata:      copyMetadata(session.Metadata),
	}
	return result, nil
}
