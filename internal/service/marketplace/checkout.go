package marketplace

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// CheckoutRequest описывает запрос на оплату первого размещения или продления.
// AdID и AdDurationInDays передаются только вместе.
type CheckoutRequest struct {
	Kind             domain.CheckoutKind
	ListingID        string
	UserID           string
	DurationInDays   int
	AdID             *int64
	AdDurationInDays *int
	CustomerEmail    string
	IdempotencyKey   string
}

// CheckoutResult содержит ссылку на hosted checkout.
type CheckoutResult struct {
	SessionID string
	URL       string
}

// Checkout проверяет запрос и создаёт платёжную сессию. Все проверки выполняются
// до обращения к провайдеру; при ошибке сессия не создаётся.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (result CheckoutResult, err error) {
	ctx, span := s.startSpan(ctx, "Marketplace.Checkout",
		attribute.String("listing_id", req.ListingID),
		attribute.String("checkout_type", string(req.Kind)),
		attribute.Int("duration_in_days", req.DurationInDays),
	)
	defer func() {
		s.metrics.RecordCheckout(string(req.Kind), err)
		endSpan(span, err)
	}()

	intent, listing, err := s.prepareCheckout(ctx, req)
	if err != nil {
		return CheckoutResult{}, err
	}

	lineItems, err := s.lineItems(ctx, listing, intent.Purchase())
	if err != nil {
		return CheckoutResult{}, err
	}

	session, err := s.payments.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{
		LineItems:      lineItems,
		Metadata:       domain.EncodeCheckoutMetadata(intent),
		SuccessURL:     expandURL(s.successURL, listing.ID),
		CancelURL:      expandURL(s.cancelURL, listing.ID),
		CustomerEmail:  req.CustomerEmail,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.logger.WithError(err).WithField("listing_id", listing.ID).Error("failed to create checkout session")
		return CheckoutResult{}, fmt.Errorf("create checkout session: %w", err)
	}

	span.SetAttributes(attribute.String("checkout_session_id", session.ID))
	s.logger.WithFields(log.Fields{
		"listing_id": listing.ID,
		"type":       string(req.Kind),
		"session_id": session.ID,
	}).Info("checkout session created")

	return CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// prepareCheckout проверяет запрос в фиксированном порядке: объявление, владелец,
// статус, поля рекламы, тип объявления, продукт, рекламное размещение, его продукт.
func (s *Service) prepareCheckout(ctx context.Context, req CheckoutRequest) (domain.CheckoutIntent, domain.Listing, error) {
	if !req.Kind.Valid() {
		return nil, domain.Listing{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedCheckoutType, req.Kind)
	}
	if strings.TrimSpace(req.ListingID) == "" {
		return nil, domain.Listing{}, domain.ErrListingIDRequired
	}

	listing, err := s.uow.Listings().Get(ctx, req.ListingID)
	if err != nil {
		return nil, domain.Listing{}, err
	}
	if !listing.OwnedBy(req.UserID) {
		return nil, domain.Listing{}, domain.ErrListingForbidden
	}

	allowed := domain.StartableStatuses
	if req.Kind == domain.CheckoutKindRenew {
		allowed = domain.RenewableStatuses
	}
	if !listing.Status.In(allowed) {
		return nil, domain.Listing{}, &domain.TransitionError{
			ListingID: listing.ID,
			Current:   listing.Status,
			From:      allowed,
			To:        domain.ListingStatusActive,
		}
	}

	if (req.AdID == nil) != (req.AdDurationInDays == nil) {
		return nil, domain.Listing{}, domain.ErrAdFieldsIncomplete
	}
	if req.AdDurationInDays != nil && *req.AdDurationInDays > req.DurationInDays {
		return nil, domain.Listing{}, domain.ErrAdDurationExceedsListing
	}

	listingType, err := s.catalog.ListingType(ctx, listing.Type)
	if err != nil {
		return nil, domain.Listing{}, err
	}
	product, err := listingType.FindProduct(req.DurationInDays)
	if err != nil {
		return nil, domain.Listing{}, err
	}

	purchase := domain.ListingPurchase{
		ListingID:      listing.ID,
		DurationInDays: product.DurationInDays,
		Price:          product.Price,
	}

	if req.AdID != nil {
		ad, err := s.catalog.Ad(ctx, *req.AdID)
		if err != nil {
			return nil, domain.Listing{}, err
		}
		adProduct, err := ad.FindProduct(*req.AdDurationInDays)
		if err != nil {
			return nil, domain.Listing{}, err
		}
		purchase.Ad = &domain.AdPurchase{
			AdID:           ad.ID,
			DurationInDays: adProduct.DurationInDays,
			Price:          adProduct.Price,
		}
	}

	intent, err := domain.NewCheckoutIntent(req.Kind, purchase)
	if err != nil {
		return nil, domain.Listing{}, err
	}
	return intent, listing, nil
}

func (s *Service) lineItems(ctx context.Context, listing domain.Listing, purchase domain.ListingPurchase) ([]domain.CheckoutLineItem, error) {
	currency := s.catalog.Currency()

	listingType, err := s.catalog.ListingType(ctx, listing.Type)
	if err != nil {
		return nil, err
	}
	product, err := listingType.FindProduct(purchase.DurationInDays)
	if err != nil {
		return nil, err
	}

	items := []domain.CheckoutLineItem{productLineItem(product, currency,
		fmt.Sprintf("%s listing, %d days", listing.Type, purchase.DurationInDays))}

	if purchase.Ad != nil {
		ad, err := s.catalog.Ad(ctx, purchase.Ad.AdID)
		if err != nil {
			return nil, err
		}
		adProduct, err := ad.FindProduct(purchase.Ad.DurationInDays)
		if err != nil {
			return nil, err
		}
		items = append(items, productLineItem(adProduct, currency,
			fmt.Sprintf("%s, %d days", ad.Name, purchase.Ad.DurationInDays)))
	}
	return items, nil
}

func productLineItem(product domain.Product, currency, fallbackTitle string) domain.CheckoutLineItem {
	title := strings.TrimSpace(product.Title)
	if title == "" {
		title = fallbackTitle
	}
	return domain.CheckoutLineItem{
		Price:       product.Price,
		Currency:    currency,
		Title:       title,
		Description: product.Description,
		ImageURLs:   append([]string(nil), product.ImageURLs...),
	}
}

func expandURL(template, listingID string) string {
	return strings.ReplaceAll(template, ListingIDPlaceholder, listingID)
}
