package domain

import (
	"encoding/json"
	"time"
)

// ListingStatus описывает жизненный цикл объявления.
type ListingStatus string

const (
	// Объявление создано владельцем, но ещё не оплачено.
	ListingStatusDraft ListingStatus = "draft"
	// Оплаченный период действует.
	ListingStatusActive ListingStatus = "active"
	// ListingStatusExpired — оплаченный период закончился (выставляется внешним заданием).
	ListingStatusExpired ListingStatus = "expired"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusDraft, ListingStatusActive, ListingStatusExpired:
		return true
	default:
		return false
	}
}

// In сообщает, входит ли статус в набор.
func (s ListingStatus) In(set []ListingStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

var (
	// Из этих статусов объявление активируется первой оплатой.
	StartableStatuses = []ListingStatus{ListingStatusDraft, ListingStatusExpired}
	// Продлить можно только активное объявление.
	RenewableStatuses = []ListingStatus{ListingStatusActive}
)

// Listing — объявление пользователя. Fields хранит контент как есть.
type Listing struct {
	ID        string
	OwnerID   string
	Type      string
	Status    ListingStatus
	Fields    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy сообщает, принадлежит ли объявление пользователю.
func (l Listing) OwnedBy(userID string) bool {
	return userID != "" && l.OwnerID == userID
}

// StatusTransition описывает запрос на условную смену статуса.
// Если Listing задан, текущий статус берётся из него и повторное чтение не выполняется.
type StatusTransition struct {
	Listing   *Listing
	ListingID string
	From      []ListingStatus
	To        ListingStatus
}

// TargetID возвращает идентификатор объявления, к которому относится переход.
func (t StatusTransition) TargetID() string {
	if t.Listing != nil {
		return t.Listing.ID
	}
	return t.ListingID
}
