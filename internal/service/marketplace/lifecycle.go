package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/ledger"
)

// Activation возвращается после применения оплаты: объявление и созданные записи реестров.
type Activation struct {
	Listing domain.Listing
	Order   domain.Order
	AdOrder *domain.Order
}

// UpdateListingStatus выполняет условный переход статуса внутри транзакции tx.
// Если в переходе передано объявление, повторное чтение не выполняется.
func (s *Service) UpdateListingStatus(ctx context.Context, tx domain.Repositories, transition domain.StatusTransition) (domain.Listing, error) {
	id := strings.TrimSpace(transition.TargetID())
	if id == "" {
		return domain.Listing{}, domain.ErrListingIDRequired
	}

	var listing domain.Listing
	if transition.Listing != nil {
		listing = *transition.Listing
	} else {
		loaded, err := tx.Listings().Get(ctx, id)
		if err != nil {
			return domain.Listing{}, err
		}
		listing = loaded
	}

	if !listing.Status.In(transition.From) {
		s.metrics.RecordTransitionConflict(string(transition.To), "invalid")
		return domain.Listing{}, &domain.TransitionError{
			ListingID: listing.ID,
			Current:   listing.Status,
			From:      transition.From,
			To:        transition.To,
		}
	}

	updated, err := tx.Listings().CompareAndSetStatus(ctx, listing.ID, transition.From, transition.To)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("update listing %s status: %w", listing.ID, err)
	}
	if !updated {
		s.metrics.RecordTransitionConflict(string(transition.To), "lost_race")
		return domain.Listing{}, fmt.Errorf("listing %s: %s -> %s: %w", listing.ID, listing.Status, transition.To, domain.ErrStatusConflict)
	}

	listing.Status = transition.To
	listing.UpdatedAt = s.now()
	return listing, nil
}

// StartListing активирует объявление (draft/expired -> active) и открывает оплаченные периоды.
// Переход, записи реестров и событие outbox фиксируются одной транзакцией.
func (s *Service) StartListing(ctx context.Context, purchase domain.ListingPurchase, payment string) (result Activation, err error) {
	ctx, span := s.startSpan(ctx, "Marketplace.StartListing", purchaseAttributes(purchase)...)
	start := time.Now()
	defer func() {
		s.metrics.RecordPaymentApplied(string(domain.CheckoutKindStart), time.Since(start), err)
		endSpan(span, err)
	}()

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		current, err := tx.Listings().Get(ctx, purchase.ListingID)
		if err != nil {
			return err
		}

		listing, err := s.UpdateListingStatus(ctx, tx, domain.StatusTransition{
			Listing: &current,
			From:    domain.StartableStatuses,
			To:      domain.ListingStatusActive,
		})
		if err != nil {
			return err
		}

		order, err := s.listings.StartOrder(ctx, tx, ledger.CreateOrderParams{
			ListingID:      purchase.ListingID,
			DurationInDays: purchase.DurationInDays,
			Price:          purchase.Price,
			Payment:        payment,
		})
		if err != nil {
			return err
		}

		var adOrder *domain.Order
		if purchase.Ad != nil {
			created, err := s.ads.StartOrder(ctx, tx, ledger.CreateOrderParams{
				ListingID:      purchase.ListingID,
				ListingAdID:    purchase.Ad.AdID,
				DurationInDays: purchase.Ad.DurationInDays,
				Price:          purchase.Ad.Price,
				Payment:        payment,
			})
			if err != nil {
				return err
			}
			adOrder = &created
		}

		result = Activation{Listing: listing, Order: order, AdOrder: adOrder}
		return s.enqueueLifecycleEvent(ctx, tx, domain.EventListingActivated, current.Status, result, payment)
	})
	if err != nil {
		s.logger.WithError(err).WithField("listing_id", purchase.ListingID).Warn("failed to start listing")
		return Activation{}, err
	}

	s.logger.WithFields(log.Fields{
		"listing_id": purchase.ListingID,
		"order_id":   result.Order.ID,
		"ends_at":    result.Order.EndsAt,
	}).Info("listing activated")
	return result, nil
}

// RenewListing продлевает объявление. Если объявление к моменту оплаты уже не активно,
// оно принудительно возвращается в active: оплата принята и должна быть применена.
func (s *Service) RenewListing(ctx context.Context, purchase domain.ListingPurchase, payment string) (result Activation, err error) {
	ctx, span := s.startSpan(ctx, "Marketplace.RenewListing", purchaseAttributes(purchase)...)
	start := time.Now()
	defer func() {
		s.metrics.RecordPaymentApplied(string(domain.CheckoutKindRenew), time.Since(start), err)
		endSpan(span, err)
	}()

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		current, err := tx.Listings().Get(ctx, purchase.ListingID)
		if err != nil {
			return err
		}

		from := domain.RenewableStatuses
		if current.Status != domain.ListingStatusActive {
			s.logger.WithFields(log.Fields{
				"listing_id": current.ID,
				"status":     string(current.Status),
			}).Warn("renewal paid for a listing that is not active, forcing it back to active")
			from = []domain.ListingStatus{current.Status}
		}

		listing, err := s.UpdateListingStatus(ctx, tx, domain.StatusTransition{
			Listing: &current,
			From:    from,
			To:      domain.ListingStatusActive,
		})
		if err != nil {
			return err
		}

		order, err := s.listings.RenewOrder(ctx, tx, ledger.RenewOrderParams{
			ListingID:      purchase.ListingID,
			DurationInDays: purchase.DurationInDays,
			Price:          purchase.Price,
			Payment:        payment,
		})
		if err != nil {
			return err
		}

		var adOrder *domain.Order
		if purchase.Ad != nil {
			renewed, err := s.ads.RenewOrder(ctx, tx, ledger.RenewOrderParams{
				ListingID:      purchase.ListingID,
				ListingAdID:    purchase.Ad.AdID,
				DurationInDays: purchase.Ad.DurationInDays,
				Price:          purchase.Ad.Price,
				Payment:        payment,
			})
			if err != nil {
				return err
			}
			adOrder = &renewed
		}

		result = Activation{Listing: listing, Order: order, AdOrder: adOrder}
		return s.enqueueLifecycleEvent(ctx, tx, domain.EventListingRenewed, current.Status, result, payment)
	})
	if err != nil {
		s.logger.WithError(err).WithField("listing_id", purchase.ListingID).Warn("failed to renew listing")
		return Activation{}, err
	}

	s.logger.WithFields(log.Fields{
		"listing_id": purchase.ListingID,
		"order_id":   result.Order.ID,
		"ends_at":    result.Order.EndsAt,
	}).Info("listing renewed")
	return result, nil
}

// HandlePaymentConfirmed применяет подтверждённую оплату согласно метаданным сессии.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, confirmation domain.PaymentConfirmation) (result Activation, err error) {
	ctx, span := s.startSpan(ctx, "Marketplace.HandlePaymentConfirmed",
		attribute.String("payment_event_id", confirmation.EventID),
		attribute.String("payment_method", confirmation.PaymentMethod),
	)
	defer func() { endSpan(span, err) }()

	intent, err := domain.DecodeCheckoutMetadata(confirmation.Metadata)
	if err != nil {
		return Activation{}, err
	}
	payment := confirmation.PaymentReference()

	switch intent := intent.(type) {
	case domain.StartListingIntent:
		return s.StartListing(ctx, intent.Purchase(), payment)
	case domain.RenewListingIntent:
		return s.RenewListing(ctx, intent.Purchase(), payment)
	default:
		return Activation{}, fmt.Errorf("%w: %T", domain.ErrUnsupportedCheckoutType, intent)
	}
}

func (s *Service) enqueueLifecycleEvent(ctx context.Context, tx domain.Repositories, eventType string, previous domain.ListingStatus, activation Activation, payment string) error {
	event := domain.ListingLifecycleEvent{
		ListingID:      activation.Listing.ID,
		OwnerID:        activation.Listing.OwnerID,
		Status:         string(activation.Listing.Status),
		PreviousStatus: string(previous),
		OrderID:        activation.Order.ID,
		DurationInDays: activation.Order.DurationInDays,
		EndsAt:         activation.Order.EndsAt,
		Payment:        payment,
		OccurredAt:     s.now(),
	}
	if activation.AdOrder != nil {
		event.AdOrderID = activation.AdOrder.ID
		event.AdID = activation.AdOrder.ListingAdID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateListing,
		AggregateID:   activation.Listing.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}

func purchaseAttributes(purchase domain.ListingPurchase) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("listing_id", purchase.ListingID),
		attribute.Int("duration_in_days", purchase.DurationInDays),
	}
	if purchase.Ad != nil {
		attrs = append(attrs,
			attribute.Int64("ad_id", purchase.Ad.AdID),
			attribute.Int("ad_duration_in_days", purchase.Ad.DurationInDays),
		)
	}
	return attrs
}
