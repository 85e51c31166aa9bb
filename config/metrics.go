package config

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the trade service collectors.
type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated        *prometheus.CounterVec
	OrderFailures        *prometheus.CounterVec
	StockChanges         *prometheus.CounterVec
	IdentifierCollisions *prometheus.CounterVec
	OrderEventsPublished *prometheus.CounterVec
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics returns the process metrics, creating them on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics("trade")
	})
	return metrics
}

// NewMetrics builds an isolated registry; tests use it to avoid global state.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.OrdersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders committed, by kind",
		},
		[]string{"kind"},
	)
	m.OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_failures_total",
			Help:      "Orchestrated operations rolled back, by kind and error kind",
		},
		[]string{"kind", "error_kind"},
	)
	m.StockChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_changes_total",
			Help:      "Inventory ledger entries written, by operation",
		},
		[]string{"operation"},
	)
	m.IdentifierCollisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_number_collisions_total",
			Help:      "Order number candidates found taken while probing",
		},
		[]string{"kind"},
	)
	m.OrderEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_events_published_total",
			Help:      "Outbox publish attempts, by status",
		},
		[]string{"status"},
	)

	registry.MustRegister(m.OrdersCreated, m.OrderFailures, m.StockChanges, m.IdentifierCollisions, m.OrderEventsPublished)
	return m
}

// Handler exposes the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
