// Package httpapi отдаёт HTTP API оформления и продления объявлений и принимает webhook провайдера.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/marketplace"
	"github.com/vladislavdragonenkov/marketplace/internal/service/webhooks"
)

const (
	// HeaderUserID — идентификатор пользователя, выставленный шлюзом аутентификации.
	HeaderUserID = "X-User-ID"
	// Клиентский ключ идемпотентности оформления.
	HeaderIdempotencyKey = "Idempotency-Key"
	// Подпись webhook Stripe.
	HeaderStripeSignature = "Stripe-Signature"
	// HeaderIdempotentReplay выставляется, если ответ взят из сохранённого.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxBodySize        = 64 * 1024
	maxWebhookBodySize = 512 * 1024
	requestTimeout     = 30 * time.Second
)

// ListingService перечисляет сценарии, доступные через HTTP.
type ListingService interface {
	CreateListing(ctx context.Context, req marketplace.CreateListingRequest) (domain.Listing, error)
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	Checkout(ctx context.Context, req marketplace.CheckoutRequest) (marketplace.CheckoutResult, error)
	ActiveOrders(ctx context.Context, listingIDs []string) ([]domain.ActiveOrders, error)
}

// WebhookDispatcher обрабатывает доставку webhook.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, payload []byte, signatureHeader string) (webhooks.Outcome, error)
}

// Config задаёт зависимости API.
type Config struct {
	Listings ListingService
	Webhooks WebhookDispatcher
	Guard    *idempotency.Guard
	Logger   *log.Entry
}

// Handler обслуживает HTTP API.
type Handler struct {
	listings ListingService
	webhooks WebhookDispatcher
	guard    *idempotency.Guard
	logger   *log.Entry
}

// NewHandler создаёт обработчики. Guard может быть nil: тогда Idempotency-Key игнорируется.
// Без Webhooks маршрут приёма webhook не регистрируется.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		listings: cfg.Listings,
		webhooks: cfg.Webhooks,
		guard:    cfg.Guard,
		logger:   logger,
	}
}

// Router собирает chi-маршрутизатор со стандартными middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/listings", func(r chi.Router) {
		r.Post("/", h.createListing)
		r.Route("/{listingID}", func(r chi.Router) {
			r.Get("/orders/active", h.activeOrders)
			r.Post("/checkout", h.checkout(domain.CheckoutKindStart))
			r.Post("/renew", h.checkout(domain.CheckoutKindRenew))
		})
	})
	r.Get("/orders/active", h.activeOrdersBatch)
	if h.webhooks != nil {
		r.Post("/webhooks/stripe", h.stripeWebhook)
	}

	return r
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
