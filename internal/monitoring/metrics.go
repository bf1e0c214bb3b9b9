package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kraken_trader_cycles_total",
			Help: "Total number of completed trading cycles",
		},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kraken_trader_cycle_duration_seconds",
			Help:    "Duration of trading cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Strategy metrics
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kraken_trader_signals_total",
			Help: "Total number of signals generated",
		},
		[]string{"strategy", "pair", "action"},
	)

	// Risk metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kraken_trader_risk_decisions_total",
			Help: "Total number of risk decisions by outcome",
		},
		[]string{"pair", "outcome"},
	)

	dailyLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kraken_trader_daily_loss",
			Help: "Realised loss accumulated today in quote currency",
		},
	)

	// Order metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kraken_trader_orders_total",
			Help: "Total number of orders by type and status",
		},
		[]string{"pair", "type", "status"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kraken_trader_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(dailyLoss)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(errorsTotal)
}

// Handler serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle records a completed trading cycle.
func RecordCycle(d time.Duration) {
	cyclesTotal.Inc()
	cycleDuration.Observe(d.Seconds())
}

// RecordSignal records a generated signal.
func RecordSignal(strategy, pair, action string) {
	signalsTotal.WithLabelValues(strategy, pair, action).Inc()
}

// RecordDecision records a risk verdict.
func RecordDecision(pair string, approved bool) {
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	decisionsTotal.WithLabelValues(pair, outcome).Inc()
}

// RecordOrder records an order attempt. Status is "placed", "simulated" or "failed".
func RecordOrder(pair, orderType, status string) {
	ordersTotal.WithLabelValues(pair, orderType, status).Inc()
}

// SetDailyLoss updates the daily loss gauge.
func SetDailyLoss(v float64) {
	dailyLoss.Set(v)
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
