package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webhookSendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pvcwatch_webhook_send_total",
	Help: "Webhook deliveries by outcome: success, retry, error or dropped.",
}, []string{"status"})

var webhookSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pvcwatch_webhook_send_duration_seconds",
	Help:    "Latency of individual webhook HTTP requests.",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
}, []string{"status"})

var notificationsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pvcwatch_notifications_dropped_total",
	Help: "Capacity transitions not delivered, by reason.",
}, []string{"reason"})
