package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	TaskMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowin_task_mutations_total",
			Help: "Task writes by kind",
		},
		[]string{"kind"}, // create, update, delete, reorder
	)

	DragDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowin_drag_drops_total",
			Help: "Drops resolved by the board reconciler",
		},
		[]string{"outcome"}, // status, reorder, none, failed
	)

	FeedSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowin_feed_subscribers",
			Help: "Open live feed subscriptions",
		},
		[]string{"kind"}, // tasks, notifications, projects
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowin_notifications_created_total",
			Help: "Notifications created by type",
		},
		[]string{"type"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowin_webhook_deliveries_total",
			Help: "Webhook deliveries by result",
		},
		[]string{"result"}, // ok, failed
	)
)

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func RecordTaskMutation(kind string) {
	TaskMutations.WithLabelValues(kind).Inc()
}

func RecordDrop(outcome string) {
	DragDrops.WithLabelValues(outcome).Inc()
}

func RecordNotification(kind string) {
	NotificationsCreated.WithLabelValues(kind).Inc()
}

func RecordWebhookDelivery(ok bool) {
	if ok {
		WebhookDeliveries.WithLabelValues("ok").Inc()
		return
	}
	WebhookDeliveries.WithLabelValues("failed").Inc()
}

// TrackSubscriber bumps the subscriber gauge and returns the matching release func.
func TrackSubscriber(kind string) func() {
	g := FeedSubscribers.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}
