package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipvreturn_notify_provider_latency_seconds",
		Help:    "Latency of notification provider calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvreturn_notify_delivery_attempts_total",
		Help: "Provider send attempts by outcome",
	}, []string{"outcome"})

	deliveriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipvreturn_notify_deliveries_exhausted_total",
		Help: "Deliveries that exhausted the retry budget",
	})

	templateDowngrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipvreturn_notify_template_downgrades_total",
		Help: "Dynamic notifications downgraded to the fallback template at delivery time",
	})
)
