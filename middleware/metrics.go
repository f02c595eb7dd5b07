package middleware

import (
	"strconv"
	"time"

	"settlement-svc/models"
	"settlement-svc/settlement"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of gateway webhook deliveries by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	paymentSettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Total number of capture events by outcome",
		},
		[]string{"outcome"},
	)

	payoutsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_created_total",
			Help: "Total number of pending payouts created",
		},
		[]string{"role"},
	)

	payoutAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_amount_paise_total",
			Help: "Total pending payout amount created, in paise",
		},
		[]string{"role"},
	)

	staffRemainderTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staff_split_remainder_paise_total",
			Help: "Staff pool paise retained by the platform after floor division",
		},
	)

	refundsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_applied_total",
			Help: "Total number of refunds applied by resulting refund status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(webhookEventsTotal)
	prometheus.MustRegister(paymentSettlementsTotal)
	prometheus.MustRegister(payoutsCreatedTotal)
	prometheus.MustRegister(payoutAmountTotal)
	prometheus.MustRegister(staffRemainderTotal)
	prometheus.MustRegister(refundsAppliedTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// PrometheusRecorder feeds settlement and dispatcher events into the counters above.
type PrometheusRecorder struct{}

var (
	_ settlement.Observer         = PrometheusRecorder{}
	_ settlement.DeliveryObserver = PrometheusRecorder{}
)

func (PrometheusRecorder) WebhookHandled(eventType string, outcome settlement.Outcome) {
	webhookEventsTotal.WithLabelValues(eventType, string(outcome)).Inc()
}

func (PrometheusRecorder) PaymentSettled(outcome string) {
	paymentSettlementsTotal.WithLabelValues(outcome).Inc()
}

func (PrometheusRecorder) PayoutCreated(role models.RecipientRole, amount int64) {
	payoutsCreatedTotal.WithLabelValues(string(role)).Inc()
	payoutAmountTotal.WithLabelValues(string(role)).Add(float64(amount))
}

func (PrometheusRecorder) StaffRemainder(amount int64) {
	staffRemainderTotal.Add(float64(amount))
}

func (PrometheusRecorder) RefundApplied(status models.RefundStatus) {
	refundsAppliedTotal.WithLabelValues(string(status)).Inc()
}
