package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewMarketplaceMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMarketplaceMetricsWithRegisterer(reg)

	if m.checkouts == nil || m.paymentsApplied == nil || m.closeOutMisses == nil {
		t.Fatal("collectors should not be nil")
	}

	// Повторная регистрация в том же реестре не паникует и возвращает те же коллекторы.
	again := NewMarketplaceMetricsWithRegisterer(reg)
	if again.checkouts != m.checkouts {
		t.Fatal("expected existing collector to be reused")
	}
}

func TestRecordCheckout(t *testing.T) {
	m := NewMarketplaceMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCheckout("listing-checkout", nil)
	m.RecordCheckout("listing-checkout", errors.New("boom"))
	m.RecordCheckout("listing-checkout", nil)

	if got := counterValue(t, m.checkouts.WithLabelValues("listing-checkout", ResultSuccess)); got != 2 {
		t.Errorf("expected 2 successful checkouts, got %f", got)
	}
	if got := counterValue(t, m.checkouts.WithLabelValues("listing-checkout", ResultError)); got != 1 {
		t.Errorf("expected 1 failed checkout, got %f", got)
	}
}

func TestRecordPaymentAppliedAndCloseOutMiss(t *testing.T) {
	m := NewMarketplaceMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordPaymentApplied("listing-renew", 15*time.Millisecond, nil)
	m.RecordCloseOutMiss("ad")
	m.RecordTransitionConflict("active", "lost_race")
	m.RecordWebhook("ignored")
	m.RecordListingCreated()

	if got := counterValue(t, m.paymentsApplied.WithLabelValues("listing-renew", ResultSuccess)); got != 1 {
		t.Errorf("expected 1 applied payment, got %f", got)
	}
	if got := counterValue(t, m.closeOutMisses.WithLabelValues("ad")); got != 1 {
		t.Errorf("expected 1 close-out miss, got %f", got)
	}
	if got := counterValue(t, m.transitionErrors.WithLabelValues("active", "lost_race")); got != 1 {
		t.Errorf("expected 1 transition conflict, got %f", got)
	}
	if got := counterValue(t, m.listingsCreated); got != 1 {
		t.Errorf("expected 1 created listing, got %f", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *MarketplaceMetrics

	m.RecordCheckout("listing-checkout", nil)
	m.RecordPaymentApplied("listing-checkout", time.Second, nil)
	m.RecordCloseOutMiss("listing")
	m.RecordTransitionConflict("active", "invalid")
	m.RecordWebhook("dispatched")
	m.RecordListingCreated()
}
