package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики движка согласованности заказов.
// Все методы безопасны для nil-получателя.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated    prometheus.Counter
	ordersUpdated    prometheus.Counter
	ordersDeleted    prometheus.Counter
	itemsReplaced    prometheus.Counter
	ordersReconciled prometheus.Counter

	// Ошибки по классам и шагам
	operationErrors     *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
	catalogFailures     prometheus.Counter

	driftDetected prometheus.Counter
	outboxEvents  prometheus.Counter

	operationDuration *prometheus.HistogramVec
	itemsPerOrder     prometheus.Histogram

	// Gauge для операций в процессе
	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном registerer.
// Повторная регистрация переиспользует уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersUpdated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_orders_updated_total",
			Help: "Total number of orders updated",
		}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_orders_deleted_total",
			Help: "Total number of orders deleted together with their line items",
		}),
		itemsReplaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_order_items_replaced_total",
			Help: "Total number of updates that replaced the full item set",
		}),
		ordersReconciled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_orders_reconciled_total",
			Help: "Total number of explicit snapshot rebuilds",
		}),
		operationErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderstore_operation_errors_total",
			Help: "Total number of failed engine operations by operation and error class",
		}, []string{"operation", "class"}),
		persistenceFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderstore_persistence_failures_total",
			Help: "Total number of storage failures by write step",
		}, []string{"step"}),
		catalogFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_catalog_lookup_failures_total",
			Help: "Total number of failed catalog price lookups",
		}),
		driftDetected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_snapshot_drift_detected_total",
			Help: "Total number of consistency checks that found snapshot drift",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstore_outbox_events_total",
			Help: "Total number of order events written to the outbox",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderstore_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		itemsPerOrder: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orderstore_items_per_order",
			Help:    "Number of line items written per order",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orderstore_operations_in_flight",
			Help: "Number of engine operations currently running",
		}),
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

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
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

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated учитывает созданный заказ и число его позиций.
func (m *OrderMetrics) RecordOrderCreated(items int) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.itemsPerOrder.Observe(float64(items))
}

// RecordOrderUpdated учитывает обновление; replaced: была ли полная замена позиций.
func (m *OrderMetrics) RecordOrderUpdated(replaced bool, items int) {
	if m == nil {
		return
	}
	m.ordersUpdated.Inc()
	if replaced {
		m.itemsReplaced.Inc()
		m.itemsPerOrder.Observe(float64(items))
	}
}

func (m *OrderMetrics) RecordOrderDeleted() {
	if m == nil {
		return
	}
	m.ordersDeleted.Inc()
}

func (m *OrderMetrics) RecordOrderReconciled() {
	if m == nil {
		return
	}
	m.ordersReconciled.Inc()
}

// RecordOperationError учитывает неудачную операцию по классу ошибки.
func (m *OrderMetrics) RecordOperationError(operation, class string) {
	if m == nil {
		return
	}
	m.operationErrors.WithLabelValues(operation, class).Inc()
}

// RecordPersistenceFailure учитывает сбой хранилища на шаге step.
func (m *OrderMetrics) RecordPersistenceFailure(step string) {
	if m == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(step).Inc()
}

func (m *OrderMetrics) RecordCatalogFailure() {
	if m == nil {
		return
	}
	m.catalogFailures.Inc()
}

func (m *OrderMetrics) RecordDriftDetected() {
	if m == nil {
		return
	}
	m.driftDetected.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// ObserveOperation открывает замер операции; вызовите возвращённую функцию по завершении.
func (m *OrderMetrics) ObserveOperation(operation string) func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}
}
