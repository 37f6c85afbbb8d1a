package cpu

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// passesTotal counts self-check calls per CPU
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uvtester_passes_total",
		Help: "Self-check function calls by CPU",
	}, []string{"cpu"})

	// divergencesTotal counts nonzero self-check results per CPU
	divergencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uvtester_divergences_total",
		Help: "Self-check calls that returned a nonzero accumulator, by CPU",
	}, []string{"cpu"})

	// loopDuration tracks main loop latency
	loopDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uvtester_main_loop_duration_seconds",
		Help:    "Duration of one main loop of passes in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	}, []string{"cpu"})
)
