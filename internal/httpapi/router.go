package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestMetrics counts and times API requests.
type RequestMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goal_reminders_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goal_reminders_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"method", "endpoint"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}
	return m
}

func (m *RequestMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.Duration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// NewRouter wires the API routes. reg backs both the request metrics and the
// /metrics endpoint.
func NewRouter(h *Handler, reg *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	metrics := NewRequestMetrics(reg)
	router.Use(metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		Success(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	router.NoRoute(NotFound)

	api := router.Group("/api")
	{
		goals := api.Group("/goals/:goalID/reminders")
		goals.PUT("", h.ScheduleGoal)
		goals.GET("", h.ListGoal)
		goals.DELETE("", h.CancelGoal)

		api.POST("/reminders/cleanup", h.Cleanup)
		api.POST("/reminders/reconcile", h.Reconcile)

		perm := api.Group("/notifications/permission")
		perm.GET("", h.GetPermission)
		perm.PUT("", h.GrantPermission)
		perm.DELETE("", h.RevokePermission)
	}

	return router
}
