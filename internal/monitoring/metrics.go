package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision cycle metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exec_engine_orders_total",
			Help: "Total number of orders finalized",
		},
		[]string{"symbol", "side"},
	)

	riskEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exec_engine_risk_events_total",
			Help: "Total number of risk engine events",
		},
		[]string{"type"},
	)

	currentRiskPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exec_engine_current_risk_pct",
			Help: "Current per-trade risk cap in percent of equity",
		},
	)

	// Execution metrics
	slicesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exec_engine_twap_slices_total",
			Help: "Total number of TWAP slices by outcome",
		},
		[]string{"status"},
	)

	sliceNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exec_engine_twap_slice_notional",
			Help:    "Distribution of executed slice notionals",
			Buckets: prometheus.ExponentialBuckets(1000, 10, 6),
		},
		[]string{"symbol"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exec_engine_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(riskEventsTotal)
	prometheus.MustRegister(currentRiskPct)
	prometheus.MustRegister(slicesTotal)
	prometheus.MustRegister(sliceNotional)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler serves the Prometheus metrics endpoint.
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordOrder records one finalized order.
func RecordOrder(symbol, side string) {
	ordersTotal.WithLabelValues(symbol, side).Inc()
}

// RecordRiskEvent records one risk engine event by type.
func RecordRiskEvent(eventType string) {
	riskEventsTotal.WithLabelValues(eventType).Inc()
}

// UpdateCurrentRiskPct publishes the engine's current risk cap.
func UpdateCurrentRiskPct(pct float64) {
	currentRiskPct.Set(pct)
}

// RecordSlice records one TWAP slice outcome.
func RecordSlice(symbol, status string, notional float64) {
	slicesTotal.WithLabelValues(status).Inc()
	if notional > 0 {
		sliceNotional.WithLabelValues(symbol).Observe(notional)
	}
}

// RecordError records an error metric.
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
