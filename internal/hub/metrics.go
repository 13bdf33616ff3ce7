package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulse",
		Subsystem: "hub",
		Name:      "open_connections",
		Help:      "Currently open transport connections.",
	})
	metricPushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "hub",
		Name:      "pushes_total",
		Help:      "Push operations processed by the hub actor.",
	})
	metricDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "hub",
		Name:      "deliveries_total",
		Help:      "Envelopes handed to connection mailboxes.",
	})
	metricDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "hub",
		Name:      "delivery_failures_total",
		Help:      "Sends dropped because a connection mailbox was full or closed.",
	})
)
