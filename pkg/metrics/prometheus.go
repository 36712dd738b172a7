package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobRuns        *prometheus.CounterVec
	candlesStored  *prometheus.CounterVec
	orders         *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	score          *prometheus.GaugeVec
	tradingEnabled prometheus.Gauge
	latency        *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		jobRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_job_runs_total",
				Help: "Scheduled job fires by outcome",
			},
			[]string{"job", "outcome"},
		),
		candlesStored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_candles_stored_total",
				Help: "Candles upserted into the store",
			},
			[]string{"symbol"},
		),
		orders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_orders_total",
				Help: "Orders by terminal status and reason",
			},
			[]string{"status", "reason"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		score: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantpulse_composite_score",
				Help: "Latest composite score per symbol",
			},
			[]string{"symbol"},
		),
		tradingEnabled: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quantpulse_trading_enabled",
				Help: "Kill switch state, 1 when trading is enabled",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordJobRun records one fire of a scheduled job.
func (r *Recorder) RecordJobRun(job, outcome string) {
	r.jobRuns.WithLabelValues(job, outcome).Inc()
}

// RecordCandlesStored records candles written by ingestion.
func (r *Recorder) RecordCandlesStored(symbol string, n int) {
	r.candlesStored.WithLabelValues(symbol).Add(float64(n))
}

// RecordOrder records a terminal order outcome.
func (r *Recorder) RecordOrder(status, reason string) {
	if reason == "" {
		reason = "none"
	}
	r.orders.WithLabelValues(status, reason).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordScore records the latest composite score for a symbol.
func (r *Recorder) RecordScore(symbol string, score float64) {
	r.score.WithLabelValues(symbol).Set(score)
}

// RecordTradingEnabled records the kill switch state.
func (r *Recorder) RecordTradingEnabled(enabled bool) {
	if enabled {
		r.tradingEnabled.Set(1)
	} else {
		r.tradingEnabled.Set(0)
	}
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
