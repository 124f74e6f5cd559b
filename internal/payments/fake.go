package payments

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// MethodFake используется префиксом ссылки на платёж у локального провайдера.
const MethodFake = "fake"

// FakeProvider — провайдер для локальной разработки и тестов: ничего не списывает,
// запоминает запросы и возвращает ссылку на локальную страницу оплаты.
type FakeProvider struct {
	mu       sync.Mutex
	baseURL  string
	err      error
	requests []domain.CheckoutSessionRequest
}

// NewFakeProvider создаёт FakeProvider. Пустой baseURL заменяется на http://localhost/checkout.
func NewFakeProvider(baseURL string) *FakeProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost/checkout"
	}
	return &FakeProvider{baseURL: baseURL}
}

// FailWith заставляет следующие вызовы возвращать err (nil снимает ошибку).
func (p *FakeProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// CreateCheckoutSession запоминает запрос и возвращает фиктивную сессию.
func (p *FakeProvider) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	if err := ctx.Err(); err != nil {
		return domain.CheckoutSession{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return domain.CheckoutSession{}, p.err
	}
	if len(req.LineItems) == 0 {
		return domain.CheckoutSession{}, errors.New("fake: checkout session requires at least one line item")
	}

	req.Metadata = copyMetadata(req.Metadata)
	req.LineItems = append([]domain.CheckoutLineItem(nil), req.LineItems...)
	p.requests = append(p.requests, req)

	id := "cs_fake_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return domain.CheckoutSession{ID: id, URL: p.baseURL + "/" + id}, nil
}

// Requests возвращает копию принятых запросов.
func (p *FakeProvider) Requests() []domain.CheckoutSessionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.CheckoutSessionRequest(nil), p.requests...)
}

// Confirm строит подтверждение оплаты по метаданным последнего запроса,
// как если бы провайдер прислал webhook.
func (p *FakeProvider) Confirm(paymentID string) (domain.PaymentConfirmation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.requests) == 0 {
		return domain.PaymentConfirmation{}, false
	}
	last := p.requests[len(p.requests)-1]
	return domain.PaymentConfirmation{
		EventID:       "evt_fake_" + paymentID,
		PaymentID:     paymentID,
		PaymentMethod: MethodFake,
		Metadata:      copyMetadata(last.Metadata),
	}, true
}

var _ domain.PaymentProvider = (*FakeProvider)(nil)
