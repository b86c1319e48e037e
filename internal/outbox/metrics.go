package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	delivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_records_published_total",
		Help: "Records marked published after a delivery attempt to all subscribers.",
	})
	deliveryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_subscriber_errors_total",
		Help: "Individual subscriber failures during relay delivery.",
	})
	recordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_record_failures_total",
		Help: "Record-level processing failures (e.g. undecodable payloads).",
	})
	unpublishedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_unpublished_records",
		Help: "Unpublished, non-quarantined records awaiting delivery.",
	})
)
