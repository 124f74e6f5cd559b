package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus описывает состояние ключа идемпотентности оформления.
type IdempotencyStatus string

const (
	// Первый запрос ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// Сохранён успешный ответ.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// Сохранён ответ с ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// DefaultIdempotencyTTL применяется, если срок хранения ключа не передан.
const DefaultIdempotencyTTL = 24 * time.Hour

// Valid проверяет, что статус известен.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	}
	return false
}

// IdempotencyRecord хранит результат запроса оформления или продления.
// Повтор с тем же ключом и тем же отпечатком получает этот ответ вместо новой платёжной сессии.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewIdempotencyRecord нормализует ключ и отпечаток и создаёт запись в статусе processing.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	case requestHash == "":
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Expired сообщает, что ключ можно удалить или занять заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Completed сообщает, что ответ уже сохранён.
func (r IdempotencyRecord) Completed() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// ReuseError возвращает ошибку повторного использования живого ключа:
// ErrIdempotencyHashMismatch для другого тела запроса, иначе ErrIdempotencyKeyAlreadyExists.
func (r IdempotencyRecord) ReuseError(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
