package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_purchases_total",
			Help: "Purchase attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	Warnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_post_capture_warnings_total",
			Help: "Post-capture steps that degraded without failing the purchase",
		},
		[]string{"step"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_notifications_total",
			Help: "Notification attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_gateway_request_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	registerOnce sync.Once
)

// Register adds the collectors to the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Purchases, Warnings, Notifications, GatewayLatency)
	})
}
