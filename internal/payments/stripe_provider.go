// Package payments адаптирует платёжного провайдера к портам домена:
// создание hosted checkout и проверка webhook.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// MethodStripe используется префиксом ссылки на платёж в реестре заказов.
const MethodStripe = "stripe"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig задаёт параметры StripeProvider.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    *log.Entry

	sessions stripeSessionAPI
}

// StripeProvider создаёт Stripe Checkout сессии.
type StripeProvider struct {
	sessions stripeSessionAPI
	account  string
	logger   *log.Entry
}

// NewStripeProvider создаёт провайдера поверх stripe-go клиента.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	sessions := cfg.sessions
	if sessions == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "stripe-provider")
	}

	return &StripeProvider{
		sessions: sessions,
		account:  strings.TrimSpace(cfg.AccountID),
		logger:   logger,
	}, nil
}

// CreateCheckoutSession создаёт сессию оплаты. Метаданные копируются и в сессию,
// и в PaymentIntent, чтобы их можно было получить из любого события.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	if len(req.LineItems) == 0 {
		return domain.CheckoutSession{}, errors.New("stripe: checkout session requires at least one line item")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Title),
		}
		if item.Description != "" {
			product.Description = stripe.String(item.Description)
		}
		if len(item.ImageURLs) > 0 {
			product.Images = stripe.StringSlice(item.ImageURLs)
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(item.Currency)),
				UnitAmount:  stripe.Int64(item.Price),
				ProductData: product,
			},
		})
	}
	params.LineItems = lineItems

	if len(req.Metadata) > 0 {
		params.Metadata = copyMetadata(req.Metadata)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(req.Metadata),
		}
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"session_id": session.ID,
		"listing_id": req.Metadata[domain.MetadataListingID],
		"type":       req.Metadata[domain.MetadataType],
	}).Info("stripe checkout session created")

	return domain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

var _ domain.PaymentProvider = (*StripeProvider)(nil)
