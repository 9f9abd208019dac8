package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API and the credit ledger.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger metrics
	CreditsDebitedTotal    prometheus.Counter
	DebitsRejectedTotal    *prometheus.CounterVec
	CreditsGrantedTotal    *prometheus.CounterVec
	PaymentReplaysTotal    prometheus.Counter
	SignatureFailuresTotal prometheus.Counter
	ResetAccountsTotal     *prometheus.CounterVec
	ResetDuration          prometheus.Histogram

	// Generation metrics
	GenerationsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptforge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptforge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		CreditsDebitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "promptforge_credits_debited_total",
				Help: "Credits removed from balances by usage",
			},
		),
		DebitsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptforge_debits_rejected_total",
				Help: "Debits refused by the ledger",
			},
			[]string{"reason"},
		),
		CreditsGrantedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptforge_credits_granted_total",
				Help: "Credits added to balances by verified payments",
			},
			[]string{"plan"},
		),
		PaymentReplaysTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "promptforge_payment_replays_total",
				Help: "Verified payments that had already been applied",
			},
		),
		SignatureFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "promptforge_payment_signature_failures_total",
				Help: "Payment confirmations rejected by signature verification",
			},
		),
		ResetAccountsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptforge_reset_accounts_total",
				Help: "Accounts processed by the daily allotment reset",
			},
			[]string{"plan", "status"},
		),
		ResetDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "promptforge_reset_duration_seconds",
				Help:    "Duration of a full daily reset sweep",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptforge_generations_total",
				Help: "Prompt generations by category and outcome",
			},
			[]string{"category", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CreditsDebitedTotal,
		m.DebitsRejectedTotal,
		m.CreditsGrantedTotal,
		m.PaymentReplaysTotal,
		m.SignatureFailuresTotal,
		m.ResetAccountsTotal,
		m.ResetDuration,
		m.GenerationsTotal,
	)

	return m
}

// responseWriter captures the status code written by the wrapped handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware instruments requests. Routes are labelled by their chi pattern so
// path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
