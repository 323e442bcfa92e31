package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventshop"

// Metrics groups the collectors of the stock ledger. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Reservations *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	LedgerDrift  prometheus.Counter
	Anomalies    *prometheus.CounterVec
	Alerts       *prometheus.GaugeVec
	Requests     *prometheus.CounterVec
	LatencyMS    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "reserve_requests_total",
			Help:      "Reserve calls by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "reservation_transitions_total",
			Help:      "Reservation rows moved to a terminal status.",
		}, []string{"status", "trigger"}),
		LedgerDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "ledger_drift_total",
			Help:      "Audits where reserved quantity did not match the RESERVED rows.",
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "ledger_anomalies_total",
			Help:      "Ledger mutations that had to be clamped to keep the row valid.",
		}, []string{"kind"}),
		Alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "replenishment_alerts",
			Help:      "Alerts produced by the last replenishment scan.",
		}, []string{"category"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
	reg.MustRegister(m.Reservations, m.Transitions, m.LedgerDrift, m.Anomalies, m.Alerts, m.Requests, m.LatencyMS)
	return m
}

func (m *Metrics) ObserveReserve(outcome string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransitions(status, trigger string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Transitions.WithLabelValues(status, trigger).Add(float64(n))
}

func (m *Metrics) ObserveDrift() {
	if m == nil {
		return
	}
	m.LedgerDrift.Inc()
}

func (m *Metrics) ObserveAnomaly(kind string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetAlerts(counts map[string]int) {
	if m == nil {
		return
	}
	for category, n := range counts {
		m.Alerts.WithLabelValues(category).Set(float64(n))
	}
}

func (m *Metrics) ObserveRequest(handler string, status int, ms float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(ms)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
