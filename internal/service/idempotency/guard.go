package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DefaultTTL задаёт срок хранения ответа по ключу идемпотентности.
const DefaultTTL = domain.DefaultIdempotencyTTL

// ErrRequestInProgress — запрос с тем же ключом ещё обрабатывается.
var ErrRequestInProgress = errors.New("request with the same idempotency key is already processing")

// Response сохраняется как ответ на запрос оформления.
type Response struct {
	Status   int
	Body     []byte
	Replayed bool
}

// Guard повторно отдаёт сохранённый ответ, если клиент повторил запрос с тем же ключом,
// и не даёт повторно создать платёжную сессию.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок хранения ключей.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardLogger задаёт logger для Guard.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard создаёт Guard. При nil repo идемпотентность отключена.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    DefaultTTL,
		logger: log.WithField("component", "idempotency-guard"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// RequestHash строит отпечаток запроса: операция и тело.
func RequestHash(operation string, body []byte) string {
	payload := make([]byte, 0, len(operation)+1+len(body))
	payload = append(payload, operation...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Do выполняет handler не более одного раза на ключ.
// Пустой ключ означает, что клиент не просил идемпотентности.
// Ответы 2xx сохраняются как done, остальные как failed; оба воспроизводятся при повторе.
func (g *Guard) Do(ctx context.Context, key, requestHash string, handler func(context.Context) Response) (Response, error) {
	key = strings.TrimSpace(key)
	if g == nil || g.repo == nil || key == "" {
		return handler(ctx), nil
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		return g.replay(err, record)
	}

	resp := handler(ctx)

	if resp.Status >= 200 && resp.Status < 300 {
		err = g.repo.MarkDone(ctx, key, resp.Body, resp.Status)
	} else {
		err = g.repo.MarkFailed(ctx, key, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}

	return resp, nil
}

func (g *Guard) replay(createErr error, record domain.IdempotencyRecord) (Response, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if record.HTTPStatus == 0 {
				return Response{}, fmt.Errorf("idempotency record %s has no stored response", record.Key)
			}
			return Response{
				Status:   record.HTTPStatus,
				Body:     append([]byte(nil), record.ResponseBody...),
				Replayed: true,
			}, nil
		case domain.IdempotencyStatusProcessing:
			return Response{}, ErrRequestInProgress
		default:
			return Response{}, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	default:
		return Response{}, fmt.Errorf("create idempotency record: %w", createErr)
	}
}
