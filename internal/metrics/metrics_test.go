package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOrderMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)

	m.RecordOrderCreated(15 * time.Millisecond)
	m.RecordOrderCreated(20 * time.Millisecond)
	m.RecordOrderCancelled()
	m.RecordRejection("INSUFFICIENT_STOCK")
	m.RecordTxRetry()
	m.RecordEvent("order.created", true)
	m.RecordEvent("order.created", false)
	m.RecordShipmentUpdate("SHIPPED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("INSUFFICIENT_STOCK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("order.created", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.shipmentUpdates.WithLabelValues("SHIPPED")))
}

func TestNewWithRegisterer_ReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewWithRegisterer(reg)
	second := NewWithRegisterer(reg)

	first.RecordOrderCancelled()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.ordersCancelled))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *OrderMetrics
	assert.NotPanics(t, func() {
		m.RecordOrderCreated(time.Second)
		m.RecordRejection("X")
		m.RecordEvent("x", true)
	})
}
