package review

import "github.com/prometheus/client_golang/prometheus"

var (
	enqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "review",
		Name:      "enqueued_total",
		Help:      "Checkout attempts queued for manual review.",
	})

	resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "review",
		Name:      "resolutions_total",
		Help:      "Manual review verdicts by outcome.",
	}, []string{"outcome"})

	pendingDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paytrust",
		Subsystem: "review",
		Name:      "pending_depth",
		Help:      "Review items currently awaiting a verdict.",
	})
)

func init() {
	prometheus.MustRegister(enqueuedTotal, resolutionsTotal, pendingDepth)
}
