package domain

import (
	"encoding/json"
	"time"
)

// Типы событий жизненного цикла объявления, попадающих в outbox.
const (
	EventListingActivated = "listing.activated"
	EventListingRenewed   = "listing.renewed"

	AggregateListing = "listing"
)

// ListingLifecycleEvent кладётся полезной нагрузкой в outbox-сообщение.
type ListingLifecycleEvent struct {
	ListingID      string    `json:"listing_id"`
	OwnerID        string    `json:"owner_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	OrderID        string    `json:"order_id"`
	AdOrderID      string    `json:"ad_order_id,omitempty"`
	AdID           int64     `json:"ad_id,omitempty"`
	DurationInDays int       `json:"duration_in_days"`
	EndsAt         time.Time `json:"ends_at"`
	Payment        string    `json:"payment"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// DeadLetter — содержимое сообщения, которое outbox worker отправляет в DLQ
// после исчерпания попыток. Payload хранит исходное событие без изменений.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error,omitempty"`
	Attempts       int             `json:"attempts,omitempty"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
}
