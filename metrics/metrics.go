// Package metrics exposes Prometheus instrumentation for settlement runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "weg_"

	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	statementGenerateTotal   *prometheus.CounterVec
	statementGenerateLatency *prometheus.HistogramVec

	plausibilityVerdicts *prometheus.CounterVec
	plausibilityLatency  prometheus.Histogram
	aiFailures           *prometheus.CounterVec

	blockedUnits *prometheus.GaugeVec
)

// Init registers metrics with the default registry. Observe functions are
// no-ops until Init ran, so engine tests need no registry.
func Init() {
	registerOnce.Do(func() {
		statementGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_generate_total",
				Help: "Total statement generate operations by result",
			},
			[]string{"result"},
		)
		statementGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_generate_latency_seconds",
				Help:    "Statement generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		plausibilityVerdicts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "plausibility_verdicts_total",
				Help: "Total plausibility verdicts by overall status",
			},
			[]string{"status"},
		)
		plausibilityLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "plausibility_latency_seconds",
				Help:    "Plausibility check latency in seconds, AI pass included",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		)
		aiFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "plausibility_ai_failures_total",
				Help: "Total AI provider failures by reason",
			},
			[]string{"reason"},
		)
		blockedUnits = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sweep_blocked_units",
				Help: "Units whose statement inputs failed validation in the last sweep",
			},
			[]string{"community"},
		)

		prometheus.MustRegister(
			statementGenerateTotal,
			statementGenerateLatency,
			plausibilityVerdicts,
			plausibilityLatency,
			aiFailures,
			blockedUnits,
		)
	})
}

// ObserveStatementGenerate records statement generation duration and result.
func ObserveStatementGenerate(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if statementGenerateTotal != nil {
		statementGenerateTotal.WithLabelValues(result).Inc()
	}
	if statementGenerateLatency != nil {
		statementGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObservePlausibility records a verdict and the time it took.
func ObservePlausibility(status string, duration time.Duration) {
	if plausibilityVerdicts != nil {
		plausibilityVerdicts.WithLabelValues(status).Inc()
	}
	if plausibilityLatency != nil {
		plausibilityLatency.Observe(duration.Seconds())
	}
}

// IncAIFailure counts a failed AI pass.
func IncAIFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if aiFailures != nil {
		aiFailures.WithLabelValues(reason).Inc()
	}
}

// SetBlockedUnits records the outcome of a validation sweep for a community.
func SetBlockedUnits(community string, n int) {
	if blockedUnits != nil {
		blockedUnits.WithLabelValues(community).Set(float64(n))
	}
}
