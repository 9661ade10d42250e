package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	checkoutTotal   *prometheus.CounterVec
	webhookTotal    *prometheus.CounterVec
	paymentTotal    *prometheus.CounterVec
	receiptDuration prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	checkoutTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Total checkout session attempts",
	}, []string{"outcome"})

	webhookTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total webhook events by type and outcome",
	}, []string{"type", "outcome"})

	paymentTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Total payment records by status",
	}, []string{"status"})

	receiptDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipt_generation_seconds",
		Help:    "Duration of receipt PDF generation",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, checkoutTotal, webhookTotal, paymentTotal, receiptDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		checkoutTotal:   checkoutTotal,
		webhookTotal:    webhookTotal,
		paymentTotal:    paymentTotal,
		receiptDuration: receiptDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveCheckout counts a checkout attempt by outcome.
func (m *MetricsService) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.checkoutTotal.WithLabelValues(outcome).Inc()
}

// ObserveWebhookEvent counts a processed webhook event.
func (m *MetricsService) ObserveWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObservePayment counts a payment record transition by status.
func (m *MetricsService) ObservePayment(status string) {
	if m == nil {
		return
	}
	m.paymentTotal.WithLabelValues(status).Inc()
}

// ObserveReceiptGeneration records how long a receipt render took.
func (m *MetricsService) ObserveReceiptGeneration(duration time.Duration) {
	if m == nil {
		return
	}
	m.receiptDuration.Observe(duration.Seconds())
}
