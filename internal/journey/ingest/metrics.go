package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvreturn_events_accepted_total",
		Help: "Inbound events applied to the aggregate stores",
	}, []string{"event_name"})

	eventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvreturn_events_skipped_total",
		Help: "Inbound events skipped as duplicates or tombstoned",
	}, []string{"event_name", "reason"})

	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvreturn_events_rejected_total",
		Help: "Inbound events dropped permanently",
	}, []string{"event_name", "reason"})

	eventsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvreturn_events_retryable_total",
		Help: "Inbound events reported back for redelivery",
	}, []string{"event_name", "reason"})
)
