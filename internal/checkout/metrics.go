package checkout

import "github.com/prometheus/client_golang/prometheus"

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "checkout",
		Name:      "decisions_total",
		Help:      "Authorization outcomes by disposition.",
	}, []string{"disposition"}) // "approved", "review", "blocked", "charge_failed"

	chargesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "checkout",
		Name:      "charges_total",
		Help:      "Charges successfully submitted to the payment provider.",
	})

	fulfillmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "checkout",
		Name:      "fulfillments_total",
		Help:      "Verified gateway events by fulfillment outcome.",
	}, []string{"outcome"}) // "fulfilled", "duplicate", "ignored"
)

func init() {
	prometheus.MustRegister(decisionsTotal, chargesTotal, fulfillmentsTotal)
}
