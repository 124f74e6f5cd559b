package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// CheckoutKind задаёт дискриминатор метаданных платежа.
type CheckoutKind string

const (
	// Первая оплата (draft/expired -> active).
	CheckoutKindStart CheckoutKind = "listing-checkout"
	// Продление активного объявления.
	CheckoutKindRenew CheckoutKind = "listing-renew"
)

// Valid проверяет, что тип оформления поддерживается.
func (k CheckoutKind) Valid() bool {
	return k == CheckoutKindStart || k == CheckoutKindRenew
}

// Ключи метаданных, передаваемых через платёжного провайдера.
const (
	MetadataType             = "type"
	MetadataListingID        = "listingId"
	MetadataDurationInDays   = "durationInDays"
	MetadataPrice            = "price"
	MetadataAdID             = "adId"
	MetadataAdDurationInDays = "adDurationInDays"
	MetadataAdPrice          = "adPrice"
)

// AdPurchase описывает докупленное рекламное размещение.
type AdPurchase struct {
	AdID           int64
	DurationInDays int
	Price          int64
}

// ListingPurchase — оплаченный срок объявления и, опционально, реклама.
type ListingPurchase struct {
	ListingID      string
	DurationInDays int
	Price          int64
	Ad             *AdPurchase
}

// CheckoutIntent образует закрытое объединение намерений, закодированных в метаданных.
// Реализации: StartListingIntent и RenewListingIntent.
type CheckoutIntent interface {
	Kind() CheckoutKind
	Purchase() ListingPurchase
	checkoutIntent()
}

// StartListingIntent активирует объявление после первой оплаты.
type StartListingIntent struct {
	ListingPurchase
}

// Kind реализует CheckoutIntent.
func (StartListingIntent) Kind() CheckoutKind { return CheckoutKindStart }

// Purchase реализует CheckoutIntent.
func (i StartListingIntent) Purchase() ListingPurchase { return i.ListingPurchase }

func (StartListingIntent) checkoutIntent() {}

// RenewListingIntent продлевает активное объявление.
type RenewListingIntent struct {
	ListingPurchase
}

// Kind реализует CheckoutIntent.
func (RenewListingIntent) Kind() CheckoutKind { return CheckoutKindRenew }

// Purchase реализует CheckoutIntent.
func (i RenewListingIntent) Purchase() ListingPurchase { return i.ListingPurchase }

func (RenewListingIntent) checkoutIntent() {}

// NewCheckoutIntent собирает намерение по типу оформления.
func NewCheckoutIntent(kind CheckoutKind, purchase ListingPurchase) (CheckoutIntent, error) {
	switch kind {
	case CheckoutKindStart:
		return StartListingIntent{ListingPurchase: purchase}, nil
	case CheckoutKindRenew:
		return RenewListingIntent{ListingPurchase: purchase}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCheckoutType, kind)
	}
}

// EncodeCheckoutMetadata сериализует намерение в строковые метаданные провайдера.
func EncodeCheckoutMetadata(intent CheckoutIntent) map[string]string {
	p := intent.Purchase()
	md := map[string]string{
		MetadataType:           string(intent.Kind()),
		MetadataListingID:      p.ListingID,
		MetadataDurationInDays: strconv.Itoa(p.DurationInDays),
		MetadataPrice:          strconv.FormatInt(p.Price, 10),
	}
	if p.Ad != nil {
		md[MetadataAdID] = strconv.FormatInt(p.Ad.AdID, 10)
		md[MetadataAdDurationInDays] = strconv.Itoa(p.Ad.DurationInDays)
		md[MetadataAdPrice] = strconv.FormatInt(p.Ad.Price, 10)
	}
	return md
}

// DecodeCheckoutMetadata разбирает метаданные, полученные обратно из webhook.
func DecodeCheckoutMetadata(md map[string]string) (CheckoutIntent, error) {
	kind := CheckoutKind(strings.TrimSpace(md[MetadataType]))
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCheckoutType, kind)
	}

	listingID := strings.TrimSpace(md[MetadataListingID])
	if listingID == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidCheckoutMetadata, MetadataListingID)
	}

	duration, err := metadataInt(md, MetadataDurationInDays)
	if err != nil {
		return nil, err
	}
	price, err := metadataInt64(md, MetadataPrice)
	if err != nil {
		return nil, err
	}

	purchase := ListingPurchase{
		ListingID:      listingID,
		DurationInDays: duration,
		Price:          price,
	}

	_, hasAd := md[MetadataAdID]
	if hasAd {
		adID, err := metadataInt64(md, MetadataAdID)
		if err != nil {
			return nil, err
		}
		adDuration, err := metadataInt(md, MetadataAdDurationInDays)
		if err != nil {
			return nil, err
		}
		adPrice, err := metadataInt64(md, MetadataAdPrice)
		if err != nil {
			return nil, err
		}
		purchase.Ad = &AdPurchase{AdID: adID, DurationInDays: adDuration, Price: adPrice}
	}

	return NewCheckoutIntent(kind, purchase)
}

func metadataInt(md map[string]string, key string) (int, error) {
	v, err := metadataInt64(md, key)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func metadataInt64(md map[string]string, key string) (int64, error) {
	raw, ok := md[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidCheckoutMetadata, key)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidCheckoutMetadata, key, err)
	}
	return v, nil
}
