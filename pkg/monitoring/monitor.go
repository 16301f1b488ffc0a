package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// AttemptDecisions 按结果统计开始作答的请求：allowed / maxAttempts / cooldown
	AttemptDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_attempt_decisions_total",
			Help: "Attempt start decisions by outcome",
		},
		[]string{"outcome"},
	)

	AttemptsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lesson_attempts_submitted_total",
			Help: "Graded attempt submissions",
		},
	)

	AttemptScoreRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lesson_attempt_score_ratio",
			Help:    "Score divided by total points for graded attempts",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	GradingWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_grading_warnings_total",
			Help: "Data-quality warnings raised while grading",
		},
		[]string{"code"},
	)

	PoolShortfalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_pool_shortfalls_total",
			Help: "Question pool draws that found fewer questions than requested",
		},
		[]string{"type"},
	)

	GovernorFailOpen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lesson_governor_fail_open_total",
			Help: "Attempts allowed because attempt history could not be read",
		},
	)

	SessionsSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_superseded_total",
			Help: "Logins that replaced a previously live session",
		},
	)

	SessionDestroyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_destroy_failures_total",
			Help: "Superseded sessions whose store record could not be destroyed",
		},
	)

	EventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Domain events that could not be published",
		},
		[]string{"event"},
	)
)

var registerOnce sync.Once

// Init 注册所有指标，重复调用是安全的
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptDecisions,
			AttemptsSubmitted,
			AttemptScoreRatio,
			GradingWarnings,
			PoolShortfalls,
			GovernorFailOpen,
			SessionsSuperseded,
			SessionDestroyFailures,
			EventPublishFailures,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
