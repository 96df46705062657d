// Package metrics exposes Prometheus instrumentation for order processing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics holds the collectors recorded by the order services.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	ordersCreated   prometheus.Counter
	ordersCancelled prometheus.Counter
	rejections      *prometheus.CounterVec
	txRetries       prometheus.Counter
	createDuration  prometheus.Histogram
	eventsPublished *prometheus.CounterVec
	shipmentUpdates *prometheus.CounterVec
}

// New registers the collectors on the default registerer.
func New() *OrderMetrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on registerer. Registering twice
// on the same registerer reuses the existing collectors.
func NewWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_rejections_total",
			Help: "Order requests rejected, by error code",
		}, []string{"code"}),
		txRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_tx_retries_total",
			Help: "Database transactions retried after a serialization failure or deadlock",
		}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_create_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		eventsPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_events_published_total",
			Help: "Domain events handed to the event sink, by type and result",
		}, []string{"type", "result"}),
		shipmentUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_shipment_updates_total",
			Help: "Shipment writes, by resulting shipment status",
		}, []string{"status"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func (m *OrderMetrics) RecordOrderCreated(duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.createDuration.Observe(duration.Seconds())
}

func (m *OrderMetrics) RecordOrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// RecordRejection counts a refused order request under its error code.
func (m *OrderMetrics) RecordRejection(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

func (m *OrderMetrics) RecordTxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

// RecordEvent counts a publish attempt; ok is false when the sink failed.
func (m *OrderMetrics) RecordEvent(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

func (m *OrderMetrics) RecordShipmentUpdate(status string) {
	if m == nil {
		return
	}
	m.shipmentUpdates.WithLabelValues(status).Inc()
}
