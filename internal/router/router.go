package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/clinicdesk/scheduling-api/internal/handler"
	"github.com/clinicdesk/scheduling-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	scheduleH    Handler
	appointmentH Handler
	h            *handler.Handler
	metrics      *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	RateLimit     rate.Limit
	RateBurst     int
	CORSConfig    middleware.CORSConfig
	MetricsPrefix string
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	scheduleH Handler,
	appointmentH Handler,
	h *handler.Handler,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	metrics := initRouterMetrics(config.MetricsPrefix)

	r := &Router{
		engine:       engine,
		auth:         auth,
		scheduleH:    scheduleH,
		appointmentH: appointmentH,
		h:            h,
		metrics:      metrics,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: 30 * time.Second}),
	)

	engine.Use(middleware.CORS(config.CORSConfig))

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.setupHealthCheck(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())

	// Slot listings are cacheable for a few seconds; every mutating
	// endpoint revalidates against live state.
	protected.Use(middleware.Cache(middleware.SlotCacheConfig()))

	r.scheduleH.RegisterRoutes(protected)
	r.appointmentH.RegisterRoutes(protected)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("/live", r.h.LivenessCheck)
		health.GET("/ready", r.h.ReadinessCheck)
		health.GET("/metrics", r.h.MetricsHandler)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Metrics initialization and middleware
func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
}

// Register exposes the router's metric collectors for the shared registry.
func (r *Router) Register(reg prometheus.Registerer) {
	reg.MustRegister(r.metrics.requestDuration, r.metrics.requestTotal, r.metrics.errorTotal)
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "http").Inc()
		}
	}
}

func (r *Router) Use(middleware ...gin.HandlerFunc) {
	r.engine.Use(middleware...)
}
