// Package ledger ведёт реестры оплаченных периодов объявлений и рекламных размещений.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Options задаёт зависимости реестра.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.MarketplaceMetrics
	Clock   func() time.Time
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

// WithClock подменяет источник текущего времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Service реализует создание и продление заказов одного реестра.
// Все записи выполняются через переданный транзакционный набор репозиториев.
type Service struct {
	kind    domain.LedgerKind
	repo    func(domain.Repositories) domain.OrderLedgerRepository
	logger  *log.Entry
	metrics *metrics.MarketplaceMetrics
	now     func() time.Time
}

// NewListingLedger создаёт реестр заказов объявлений.
func NewListingLedger(options ...Option) *Service {
	return newService(domain.LedgerListing, func(r domain.Repositories) domain.OrderLedgerRepository {
		return r.Orders()
	}, options...)
}

// NewAdLedger создаёт реестр заказов рекламных размещений.
func NewAdLedger(options ...Option) *Service {
	return newService(domain.LedgerAd, func(r domain.Repositories) domain.OrderLedgerRepository {
		return r.AdOrders()
	}, options...)
}

func newService(kind domain.LedgerKind, repo func(domain.Repositories) domain.OrderLedgerRepository, options ...Option) *Service {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "ledger")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		kind:    kind,
		repo:    repo,
		logger:  logger.WithField("ledger", string(kind)),
		metrics: opts.Metrics,
		now:     clock,
	}
}

// CreateOrderParams задаёт новый оплаченный период.
// EndsAt задаётся только при продлении; иначе период отсчитывается от текущего момента.
type CreateOrderParams struct {
	ListingID      string
	ListingAdID    int64
	DurationInDays int
	Price          int64
	Payment        string
	EndsAt         *time.Time
}

// RenewOrderParams задаёт продление.
type RenewOrderParams struct {
	ListingID      string
	ListingAdID    int64
	DurationInDays int
	Price          int64
	Payment        string
}

func (s *Service) key(listingID string, adID int64) domain.LedgerKey {
	if s.kind != domain.LedgerAd {
		adID = 0
	}
	return domain.LedgerKey{ListingID: listingID, ListingAdID: adID}
}

func validate(listingID string, durationInDays int) error {
	if strings.TrimSpace(listingID) == "" {
		return domain.ErrListingIDRequired
	}
	if durationInDays <= 0 {
		return domain.ErrDurationInvalid
	}
	return nil
}

// CreateOrder вставляет активную запись без проверки пересечений.
func (s *Service) CreateOrder(ctx context.Context, tx domain.Repositories, params CreateOrderParams) (domain.Order, error) {
	if err := validate(params.ListingID, params.DurationInDays); err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	endsAt := now.Add(domain.Days(params.DurationInDays))
	if params.EndsAt != nil {
		endsAt = *params.EndsAt
	}

	key := s.key(params.ListingID, params.ListingAdID)
	order := domain.Order{
		ID:             uuid.NewString(),
		ListingID:      key.ListingID,
		ListingAdID:    key.ListingAdID,
		Status:         domain.OrderStatusActive,
		DurationInDays: params.DurationInDays,
		Price:          params.Price,
		Payment:        params.Payment,
		StartsAt:       now,
		EndsAt:         endsAt,
		CreatedAt:      now,
	}

	if err := s.repo(tx).Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create %s order: %w", s.kind, err)
	}
	return order, nil
}

// RenewOrder продлевает текущий период: новая запись заканчивается через DurationInDays
// после окончания действующей (или после текущего момента, если активной записи нет).
// Закрытие предыдущей записи выполняется условным UPDATE; если запись уже не активна,
// промах логируется и продление не прерывается.
func (s *Service) RenewOrder(ctx context.Context, tx domain.Repositories, params RenewOrderParams) (domain.Order, error) {
	if err := validate(params.ListingID, params.DurationInDays); err != nil {
		return domain.Order{}, err
	}

	repo := s.repo(tx)
	key := s.key(params.ListingID, params.ListingAdID)

	existing, err := repo.FindActive(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, fmt.Errorf("find active %s order: %w", s.kind, err)
	}

	base := s.now()
	if found {
		base = existing.EndsAt
	}
	endsAt := base.Add(domain.Days(params.DurationInDays))

	order, err := s.CreateOrder(ctx, tx, CreateOrderParams{
		ListingID:      params.ListingID,
		ListingAdID:    params.ListingAdID,
		DurationInDays: params.DurationInDays,
		Price:          params.Price,
		Payment:        params.Payment,
		EndsAt:         &endsAt,
	})
	if err != nil {
		return domain.Order{}, err
	}

	if !found {
		return order, nil
	}

	closed, err := repo.MarkRenewed(ctx, existing.ID, order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("close out %s order %s: %w", s.kind, existing.ID, err)
	}
	if !closed {
		s.metrics.RecordCloseOutMiss(string(s.kind))
		s.logger.WithFields(log.Fields{
			"listing_id":     key.ListingID,
			"listing_ad_id":  key.ListingAdID,
			"previous_order": existing.ID,
			"new_order":      order.ID,
		}).Warn("previous order was no longer active when closing it out")
	}

	return order, nil
}

// StartOrder открывает новый период от текущего момента. Если по ключу осталась
// активная запись, она закрывается ссылкой на новую, чтобы активной оставалась одна запись.
// Неизрасходованный остаток этой записи (объявление сняли раньше EndsAt) переносится:
// новый период заканчивается через DurationInDays после её EndsAt, как при продлении.
func (s *Service) StartOrder(ctx context.Context, tx domain.Repositories, params CreateOrderParams) (domain.Order, error) {
	if err := validate(params.ListingID, params.DurationInDays); err != nil {
		return domain.Order{}, err
	}

	repo := s.repo(tx)
	key := s.key(params.ListingID, params.ListingAdID)

	stale, err := repo.FindActive(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, fmt.Errorf("find active %s order: %w", s.kind, err)
	}

	params.EndsAt = nil
	if found && stale.EndsAt.After(s.now()) {
		endsAt := stale.EndsAt.Add(domain.Days(params.DurationInDays))
		params.EndsAt = &endsAt
	}
	order, err := s.CreateOrder(ctx, tx, params)
	if err != nil {
		return domain.Order{}, err
	}
	if !found {
		return order, nil
	}

	closed, err := repo.MarkRenewed(ctx, stale.ID, order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("close out stale %s order %s: %w", s.kind, stale.ID, err)
	}
	fields := log.Fields{
		"listing_id":     key.ListingID,
		"listing_ad_id":  key.ListingAdID,
		"previous_order": stale.ID,
		"new_order":      order.ID,
		"carried_over":   params.EndsAt != nil,
	}
	if !closed {
		s.metrics.RecordCloseOutMiss(string(s.kind))
		s.logger.WithFields(fields).Warn("stale order was no longer active when closing it out")
		return order, nil
	}
	s.logger.WithFields(fields).Info("stale active order closed by a fresh start")
	return order, nil
}

// FindActiveByListingID возвращает активную запись или domain.ErrOrderNotFound.
func (s *Service) FindActiveByListingID(ctx context.Context, repos domain.Repositories, listingID string, adID int64) (domain.Order, error) {
	return s.repo(repos).FindActive(ctx, s.key(listingID, adID))
}

// FindActiveByListingIDs возвращает активные записи набора объявлений.
func (s *Service) FindActiveByListingIDs(ctx context.Context, repos domain.Repositories, listingIDs []string) ([]domain.Order, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}
	return s.repo(repos).FindActiveByListingIDs(ctx, listingIDs)
}
