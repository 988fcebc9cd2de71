package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipvreturn_session_feed_publish_failures_total",
		Help: "Session change feed notifications that could not be published",
	})

	watchConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ipvreturn_session_watch_conflicts_total",
		Help: "Optimistic concurrency conflicts retried during session writes",
	})
)
