package fraud

import "github.com/prometheus/client_golang/prometheus"

var (
	assessmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "fraud",
		Name:      "assessments_total",
		Help:      "Total scored checkout attempts by recommendation.",
	}, []string{"recommendation"})

	scoreDistribution = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paytrust",
		Subsystem: "fraud",
		Name:      "score",
		Help:      "Distribution of risk scores.",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	signalTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "fraud",
		Name:      "signal_triggered_total",
		Help:      "How often each risk signal fired.",
	}, []string{"signal"})

	windowStoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "fraud",
		Name:      "window_store_failures_total",
		Help:      "Scoring passes that ran without window state and degraded to review.",
	})
)

func init() {
	prometheus.MustRegister(assessmentsTotal, scoreDistribution, signalTriggered, windowStoreFailures)
}
