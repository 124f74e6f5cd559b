package domain

import (
	"context"
	"time"
)

// ListingRepository хранит объявления.
type ListingRepository interface {
	// Create сохраняет новое объявление.
	Create(ctx context.Context, listing Listing) error
	// Get возвращает объявление или ErrListingNotFound.
	Get(ctx context.Context, id string) (Listing, error)
	// CompareAndSetStatus меняет статус, только если текущий входит в from.
	// Возвращает false, если ни одна строка не обновлена.
	CompareAndSetStatus(ctx context.Context, id string, from []ListingStatus, to ListingStatus) (bool, error)
}

// OrderLedgerRepository хранит один реестр оплаченных периодов.
type OrderLedgerRepository interface {
	// Create вставляет строку без проверки пересечений с активными записями.
	Create(ctx context.Context, order Order) error
	// FindActive возвращает активную запись по ключу или ErrOrderNotFound.
	FindActive(ctx context.Context, key LedgerKey) (Order, error)
	// FindActiveByListingIDs возвращает активные записи для набора объявлений.
	FindActiveByListingIDs(ctx context.Context, listingIDs []string) ([]Order, error)
	// MarkRenewed закрывает активную запись ссылкой на новую (active -> finished).
	// Возвращает false, если запись уже не активна.
	MarkRenewed(ctx context.Context, id, renewedByOrderID string) (bool, error)
	// ListByListing возвращает всю историю объявления в порядке StartsAt.
	ListByListing(ctx context.Context, listingID string) ([]Order, error)
}

// Repositories собирает хранилища, доступные как вне транзакции, так и внутри неё.
type Repositories interface {
	Listings() ListingRepository
	Orders() OrderLedgerRepository
	AdOrders() OrderLedgerRepository
	Outbox() OutboxRepository
}

// UnitOfWork выполняет fn в одной транзакции: ошибка из fn откатывает все изменения.
type UnitOfWork interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// CheckoutLineItem описывает позицию в платёжной сессии.
type CheckoutLineItem struct {
	Price       int64
	Currency    string
	Title       string
	Description string
	ImageURLs   []string
}

// CheckoutSessionRequest содержит всё, что нужно провайдеру для hosted checkout.
type CheckoutSessionRequest struct {
	LineItems      []CheckoutLineItem
	Metadata       map[string]string
	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	IdempotencyKey string
}

// CheckoutSession возвращается провайдером.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentProvider создаёт hosted checkout сессии.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// PaymentConfirmation описывает подтверждённый платёж с метаданными, которые мы отдавали провайдеру.
type PaymentConfirmation struct {
	EventID       string
	PaymentID     string
	PaymentMethod string
	Metadata      map[string]string
}

// PaymentReference формирует непрозрачную ссылку на платёж вида "stripe:pi_123".
func (c PaymentConfirmation) PaymentReference() string {
	if c.PaymentMethod == "" {
		return c.PaymentID
	}
	return c.PaymentMethod + ":" + c.PaymentID
}

// PaymentEvent — проверенное событие webhook. Confirmation задан только для успешной оплаты.
type PaymentEvent struct {
	ID           string
	Type         string
	Confirmation *PaymentConfirmation
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// IdempotencyRepository хранит ответы на запросы оформления по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
