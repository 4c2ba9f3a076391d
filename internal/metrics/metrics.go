// Package metrics provides Prometheus instrumentation for the ticket engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReservationsTotal counts reservation attempts by outcome
	// (reserved, conflict, error).
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conftix_reservations_total",
		Help: "Total reservation attempts by outcome",
	}, []string{"outcome"})

	// ReservationConflicts counts attempts rejected for insufficient
	// inventory, the signal for sold-out pressure.
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conftix_reservation_conflicts_total",
		Help: "Reservations rejected for insufficient inventory",
	})

	// QuotesTotal counts basket quotes computed, by result.
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conftix_quotes_total",
		Help: "Total basket quotes computed",
	}, []string{"result"})

	// DiscountApplications counts applied discount codes by code.
	DiscountApplications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conftix_discount_applications_total",
		Help: "Discount codes applied to quoted baskets",
	}, []string{"code"})

	// SoldOutTicketTypes tracks how many ticket types have no inventory
	// remaining.
	SoldOutTicketTypes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conftix_sold_out_ticket_types",
		Help: "Number of ticket types with zero remaining inventory",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conftix_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conftix_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conftix_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern as label, not the raw path: reservation URLs carry
		// UUIDs and would blow up label cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
