// Package marketplace связывает объявления, каталог, платёжного провайдера и реестры заказов:
// оформление оплаты, активация и продление объявлений после подтверждённого платежа.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/ledger"
)

// ListingIDPlaceholder подставляется в шаблоны success/cancel URL.
const ListingIDPlaceholder = "{listingId}"

const (
	defaultSuccessURL = "http://localhost:8080/listings/" + ListingIDPlaceholder + "?checkout=success"
	defaultCancelURL  = "http://localhost:8080/listings/" + ListingIDPlaceholder + "?checkout=cancel"
)

// Options задаёт зависимости сервиса.
type Options struct {
	Logger     *log.Entry
	Metrics    *metrics.MarketplaceMetrics
	Clock      func() time.Time
	Tracer     trace.Tracer
	SuccessURL string
	CancelURL  string
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.MarketplaceMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени (и для реестров заказов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithTracer задаёт tracer OpenTelemetry.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *Options) {
		opts.Tracer = tracer
	}
}

// WithCheckoutURLs задаёт шаблоны адресов возврата из hosted checkout.
// Вхождения {listingId} заменяются идентификатором объявления.
func WithCheckoutURLs(successURL, cancelURL string) Option {
	return func(opts *Options) {
		opts.SuccessURL = successURL
		opts.CancelURL = cancelURL
	}
}

// Service реализует сценарии оформления и применения оплат.
type Service struct {
	uow        domain.UnitOfWork
	catalog    domain.Catalog
	payments   domain.PaymentProvider
	listings   *ledger.Service
	ads        *ledger.Service
	logger     *log.Entry
	metrics    *metrics.MarketplaceMetrics
	tracer     trace.Tracer
	now        func() time.Time
	successURL string
	cancelURL  string
}

// NewService создаёт сервис.
func NewService(uow domain.UnitOfWork, catalog domain.Catalog, payments domain.PaymentProvider, options ...Option) (*Service, error) {
	if uow == nil {
		return nil, fmt.Errorf("marketplace: unit of work is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("marketplace: catalog is required")
	}
	if payments == nil {
		return nil, fmt.Errorf("marketplace: payment provider is required")
	}

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "marketplace")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("marketplace/service")
	}
	successURL := strings.TrimSpace(opts.SuccessURL)
	if successURL == "" {
		successURL = defaultSuccessURL
	}
	cancelURL := strings.TrimSpace(opts.CancelURL)
	if cancelURL == "" {
		cancelURL = defaultCancelURL
	}

	ledgerOptions := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithMetrics(opts.Metrics),
		ledger.WithClock(clock),
	}

	return &Service{
		uow:        uow,
		catalog:    catalog,
		payments:   payments,
		listings:   ledger.NewListingLedger(ledgerOptions...),
		ads:        ledger.NewAdLedger(ledgerOptions...),
		logger:     logger,
		metrics:    opts.Metrics,
		tracer:     tracer,
		now:        clock,
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

// CreateListingRequest описывает новое объявление в статусе draft.
type CreateListingRequest struct {
	OwnerID string
	Type    string
	Fields  json.RawMessage
}

// CreateListing сохраняет черновик объявления. Тип должен существовать в каталоге.
func (s *Service) CreateListing(ctx context.Context, req CreateListingRequest) (domain.Listing, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		return domain.Listing{}, domain.ErrOwnerRequired
	}
	listingType := strings.TrimSpace(req.Type)
	if _, err := s.catalog.ListingType(ctx, listingType); err != nil {
		return domain.Listing{}, err
	}

	fields := bytes.TrimSpace(req.Fields)
	if len(fields) == 0 {
		fields = []byte("{}")
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(fields, &object); err != nil || object == nil {
		return domain.Listing{}, domain.ErrListingFieldsInvalid
	}

	now := s.now()
	listing := domain.Listing{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Type:      listingType,
		Status:    domain.ListingStatusDraft,
		Fields:    json.RawMessage(append([]byte(nil), fields...)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.uow.Listings().Create(ctx, listing); err != nil {
		return domain.Listing{}, fmt.Errorf("create listing: %w", err)
	}

	s.metrics.RecordListingCreated()
	s.logger.WithFields(log.Fields{
		"listing_id": listing.ID,
		"owner_id":   listing.OwnerID,
		"type":       listing.Type,
	}).Info("listing created")

	return listing, nil
}

// GetListing возвращает объявление.
func (s *Service) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Listing{}, domain.ErrListingIDRequired
	}
	return s.uow.Listings().Get(ctx, id)
}

// ActiveOrders возвращает действующие заказы объявления и его рекламы для набора объявлений.
// Порядок результата совпадает с порядком listingIDs; повторы схлопываются.
func (s *Service) ActiveOrders(ctx context.Context, listingIDs []string) ([]domain.ActiveOrders, error) {
	ids := make([]string, 0, len(listingIDs))
	seen := make(map[string]struct{}, len(listingIDs))
	for _, id := range listingIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	listingOrders, err := s.listings.FindActiveByListingIDs(ctx, s.uow, ids)
	if err != nil {
		return nil, fmt.Errorf("find active listing orders: %w", err)
	}
	adOrders, err := s.ads.FindActiveByListingIDs(ctx, s.uow, ids)
	if err != nil {
		return nil, fmt.Errorf("find active ad orders: %w", err)
	}

	byListing := make(map[string]*domain.ActiveOrders, len(ids))
	result := make([]domain.ActiveOrders, len(ids))
	for i, id := range ids {
		result[i] = domain.ActiveOrders{ListingID: id}
		byListing[id] = &result[i]
	}
	for _, order := range listingOrders {
		if entry, ok := byListing[order.ListingID]; ok {
			order := order
			entry.Listing = &order
		}
	}
	for _, order := range adOrders {
		if entry, ok := byListing[order.ListingID]; ok {
			entry.Ads = append(entry.Ads, order)
		}
	}
	return result, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
