package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PushesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webpush_pushes_total",
		Help: "Web Push deliveries by outcome (ok, failed, gone)",
	}, []string{"outcome"})

	SubscriptionsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webpush_subscriptions_pruned_total",
		Help: "Subscriptions deleted after the push service reported them gone",
	})

	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webpush_notifications_published_total",
		Help: "Published notifications by type",
	}, []string{"type"})

	ApprovalResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webpush_approval_resolutions_total",
		Help: "Approval resolution attempts by result",
	}, []string{"result"})

	LiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webpush_live_channels",
		Help: "Open live event channels",
	})

	TasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webpush_tasks_rejected_total",
		Help: "Enqueue attempts rejected because the task queue was full",
	})

	PublishesThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webpush_publishes_throttled_total",
		Help: "Publish requests rejected by the per push token rate limit",
	})
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
