package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrListingNotFound возвращается, если объявление не найдено.
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingTypeNotFound возвращается, если для типа объявления нет таблицы продуктов.
	ErrListingTypeNotFound = errors.New("listing type not found")
	// ErrAdNotFound возвращается, если рекламное размещение не найдено в каталоге.
	ErrAdNotFound = errors.New("ad not found")
	// ErrOrderNotFound возвращается, если в реестре нет подходящей записи.
	ErrOrderNotFound = errors.New("order not found")
	// ErrListingForbidden — пользователь не является владельцем объявления.
	ErrListingForbidden = errors.New("listing does not belong to user")
	// Ошибка отсутствующего идентификатора владельца.
	ErrOwnerRequired = errors.New("owner id is required")
	// Ошибка отсутствующего идентификатора объявления.
	ErrListingIDRequired = errors.New("listing id is required")
	// Ошибка, если контент объявления не JSON-объект.
	ErrListingFieldsInvalid = errors.New("listing fields must be a json object")

	// ErrInvalidTransition — текущий статус объявления не входит в допустимое множество from.
	ErrInvalidTransition = errors.New("invalid listing status transition")
	// ErrStatusConflict — условный UPDATE не затронул ни одной строки (проиграли гонку).
	ErrStatusConflict = errors.New("listing status changed concurrently")

	// Ошибка неположительной длительности.
	ErrDurationInvalid = errors.New("duration in days must be greater than zero")
	// ErrUnsupportedDuration — в таблице продуктов типа нет записи с такой длительностью.
	ErrUnsupportedDuration = errors.New("unsupported listing duration")
	// ErrUnsupportedAdDuration — у рекламного размещения нет продукта с такой длительностью.
	ErrUnsupportedAdDuration = errors.New("unsupported ad duration")
	// ErrAdDurationExceedsListing — реклама не может жить дольше самого объявления.
	ErrAdDurationExceedsListing = errors.New("ad duration exceeds listing duration")
	// ErrAdFieldsIncomplete — adId и adDurationInDays передаются только вместе.
	ErrAdFieldsIncomplete = errors.New("ad id and ad duration must be provided together")
	// Ошибка отрицательной цены продукта.
	ErrPriceNegative = errors.New("price must be non-negative")

	// ErrUnsupportedCheckoutType — в метаданных платежа неизвестный type.
	ErrUnsupportedCheckoutType = errors.New("unsupported checkout type")
	// ErrInvalidCheckoutMetadata — метаданные платежа не удалось разобрать.
	ErrInvalidCheckoutMetadata = errors.New("invalid checkout metadata")
	// ErrWebhookSignature — подпись webhook не прошла проверку.
	ErrWebhookSignature = errors.New("webhook signature verification failed")

	// ErrOutboxMessageNotFound возвращается, если сообщения outbox нет.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// Ошибка пустого ключа идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка пустого хэша запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound возвращается, если ключа нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// TransitionError описывает запрещённый переход статуса объявления.
type TransitionError struct {
	ListingID string
	Current   ListingStatus
	From      []ListingStatus
	To        ListingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("listing %s: transition %s -> %s is not allowed (expected one of %v)",
		e.ListingID, e.Current, e.To, e.From)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsNotFound проверяет, относится ли ошибка к отсутствующим сущностям.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrListingNotFound) ||
		errors.Is(err, ErrListingTypeNotFound) ||
		errors.Is(err, ErrAdNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// IsConflict проверяет, является ли ошибка конфликтом состояния.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrStatusConflict)
}

// IsInvalidInput проверяет, является ли ошибка ошибкой клиентского ввода.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrDurationInvalid) ||
		errors.Is(err, ErrUnsupportedDuration) ||
		errors.Is(err, ErrUnsupportedAdDuration) ||
		errors.Is(err, ErrAdDurationExceedsListing) ||
		errors.Is(err, ErrAdFieldsIncomplete) ||
		errors.Is(err, ErrOwnerRequired) ||
		errors.Is(err, ErrListingIDRequired) ||
		errors.Is(err, ErrListingFieldsInvalid) ||
		errors.Is(err, ErrUnsupportedCheckoutType)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
