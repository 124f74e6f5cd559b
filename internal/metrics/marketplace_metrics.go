package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// MarketplaceMetrics содержит метрики оформления, оплаты и реестров заказов.
// Все методы безопасны для nil-получателя.
type MarketplaceMetrics struct {
	checkouts        *prometheus.CounterVec
	paymentsApplied  *prometheus.CounterVec
	paymentDuration  *prometheus.HistogramVec
	closeOutMisses   *prometheus.CounterVec
	transitionErrors *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	listingsCreated  prometheus.Counter
}

// NewMarketplaceMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewMarketplaceMetrics() *MarketplaceMetrics {
	return NewMarketplaceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMarketplaceMetricsWithRegisterer регистрирует метрики в указанном реестре.
// Повторная регистрация переиспользует существующие коллекторы.
func NewMarketplaceMetricsWithRegisterer(registerer prometheus.Registerer) *MarketplaceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &MarketplaceMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkouts_total",
			Help: "Checkout sessions requested, by checkout type and result",
		}, []string{"kind", "result"}),
		paymentsApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_payments_applied_total",
			Help: "Confirmed payments applied to listings, by checkout type and result",
		}, []string{"kind", "result"}),
		paymentDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_payment_apply_duration_seconds",
			Help:    "Duration of post-payment listing transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"kind"}),
		closeOutMisses: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_ledger_closeout_misses_total",
			Help: "Renewals whose previous active order was no longer active when closing it out",
		}, []string{"ledger"}),
		transitionErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_listing_transition_conflicts_total",
			Help: "Rejected listing status transitions, by target status and reason",
		}, []string{"to", "reason"}),
		webhookEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_webhook_events_total",
			Help: "Payment provider webhook deliveries, by outcome",
		}, []string{"outcome"}),
		listingsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_listings_created_total",
			Help: "Draft listings created",
		}),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// RecordCheckout учитывает попытку создать платёжную сессию.
func (m *MarketplaceMetrics) RecordCheckout(kind string, err error) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(kind, resultLabel(err)).Inc()
}

// RecordPaymentApplied учитывает обработку подтверждённой оплаты и её длительность.
func (m *MarketplaceMetrics) RecordPaymentApplied(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.paymentsApplied.WithLabelValues(kind, resultLabel(err)).Inc()
	m.paymentDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCloseOutMiss учитывает продление, при котором предыдущий заказ уже был закрыт.
func (m *MarketplaceMetrics) RecordCloseOutMiss(ledger string) {
	if m == nil {
		return
	}
	m.closeOutMisses.WithLabelValues(ledger).Inc()
}

// RecordTransitionConflict учитывает отклонённый переход статуса.
// reason: "invalid" (статус не из from) или "lost_race" (UPDATE не затронул строк).
func (m *MarketplaceMetrics) RecordTransitionConflict(to, reason string) {
	if m == nil {
		return
	}
	m.transitionErrors.WithLabelValues(to, reason).Inc()
}

// RecordWebhook учитывает доставку webhook.
func (m *MarketplaceMetrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

// RecordListingCreated увеличивает счётчик созданных объявлений.
func (m *MarketplaceMetrics) RecordListingCreated() {
	if m == nil {
		return
	}
	m.listingsCreated.Inc()
}
