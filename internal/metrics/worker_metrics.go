package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы публикации outbox-сообщения.
const (
	PublishSent       = "sent"
	PublishRetry      = "retry"
	PublishDeadLetter = "dead_letter"
	PublishDLQFailed  = "dlq_failed"
)

// OutboxMetrics собирает метрики воркера публикации transactional outbox.
type OutboxMetrics struct {
	published     *prometheus.CounterVec
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox в указанном реестре (nil → DefaultRegisterer).
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		published: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_publish_total",
			Help: "Outbox publish attempts, by event type and outcome",
		}, []string{"event_type", "outcome"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_outbox_pending_records",
			Help: "Pending records in the transactional outbox",
		}),
		oldestPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record",
		}),
	}
}

// RecordPublish учитывает исход одной попытки публикации.
func (m *OutboxMetrics) RecordPublish(eventType, outcome string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(eventType, outcome).Inc()
}

// SetBacklog обновляет размер backlog и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 || pending == 0 {
		oldestAge = 0
	}
	m.pending.Set(float64(pending))
	m.oldestPending.Set(oldestAge.Seconds())
}

// CleanupMetrics собирает метрики очистки ключей идемпотентности.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewCleanupMetrics регистрирует метрики очистки в указанном реестре (nil → DefaultRegisterer).
func NewCleanupMetrics(registerer prometheus.Registerer) *CleanupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &CleanupMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_idempotency_cleanup_runs_total",
			Help: "Idempotency cleanup runs, by result",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency records deleted",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_idempotency_cleanup_last_deleted",
			Help: "Records deleted by the last cleanup run",
		}),
	}
}

// RecordRun учитывает завершённый цикл очистки.
func (m *CleanupMetrics) RecordRun(deleted int, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return
	}
	m.lastDeleted.Set(float64(deleted))
}

// AddDeleted увеличивает общий счётчик удалённых записей.
func (m *CleanupMetrics) AddDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deleted.Add(float64(n))
}
