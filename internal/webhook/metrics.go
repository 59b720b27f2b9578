package webhook

import "github.com/prometheus/client_golang/prometheus"

var (
	webhooksReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paytrust",
		Subsystem: "webhook",
		Name:      "received_total",
		Help:      "Total inbound webhook deliveries by verification result.",
	}, []string{"result"}) // "accepted", "malformed_header", "signature_mismatch", "parse_error", "stale"

	webhookVerifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paytrust",
		Subsystem: "webhook",
		Name:      "verify_duration_seconds",
		Help:      "Signature verification latency in seconds.",
		Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	})
)

func init() {
	prometheus.MustRegister(webhooksReceived, webhookVerifyDuration)
}
