package domain

import "time"

// OrderStatus описывает статус записи в реестре оплаченных периодов.
type OrderStatus string

const (
	// Текущий оплаченный период.
	OrderStatusActive OrderStatus = "active"
	// Период закрыт продлением.
	OrderStatusFinished OrderStatus = "finished"
)

// LedgerKind различает реестр объявлений и реестр рекламных размещений.
type LedgerKind string

const (
	// Заказы на само объявление.
	LedgerListing LedgerKind = "listing"
	// Заказы на рекламное размещение объявления.
	LedgerAd LedgerKind = "ad"
)

// LedgerKey адресует последовательность заказов: объявление либо пара объявление+реклама.
type LedgerKey struct {
	ListingID   string
	ListingAdID int64
}

// Order — одна строка реестра: оплаченный полуинтервал [StartsAt, EndsAt).
// ListingAdID заполнен только в реестре рекламы.
type Order struct {
	ID               string
	ListingID        string
	ListingAdID      int64
	Status           OrderStatus
	DurationInDays   int
	Price            int64
	Payment          string
	StartsAt         time.Time
	EndsAt           time.Time
	RenewedByOrderID string
	CreatedAt        time.Time
}

// Key возвращает ключ последовательности, к которой относится заказ.
func (o Order) Key() LedgerKey {
	return LedgerKey{ListingID: o.ListingID, ListingAdID: o.ListingAdID}
}

// IsActive сообщает, является ли запись текущим оплаченным периодом.
func (o Order) IsActive() bool {
	return o.Status == OrderStatusActive
}

// Days переводит количество дней в time.Duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// ActiveOrders собирает текущие оплаченные периоды объявления и его рекламы.
type ActiveOrders struct {
	ListingID string
	Listing   *Order
	Ads       []Order
}
