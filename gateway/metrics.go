package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Completion calls by model and outcome.",
	}, []string{"model", "outcome"})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "council",
		Subsystem: "gateway",
		Name:      "call_duration_seconds",
		Help:      "Completion call latency by model.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"model"})

	catalogRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "gateway",
		Name:      "catalog_refreshes_total",
		Help:      "Successful model-catalog refreshes.",
	})
)

func observeCall(model, outcome string, elapsed time.Duration) {
	callsTotal.WithLabelValues(model, outcome).Inc()
	callDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}
