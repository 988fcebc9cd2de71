package reaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvreturn_reaction_notifications_enqueued_total",
		Help: "Outbound notifications placed on the delivery queue",
	}, []string{"message_type"})

	staticFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipvreturn_reaction_static_fallbacks_total",
		Help: "Notifications that fell back to the static template",
	})

	notificationsLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipvreturn_reaction_notifications_lost_total",
		Help: "Claims spent without a successful enqueue in at-most-once mode",
	})
)
