package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/api/handlers"
	"github.com/noa10/mataresit-sub018/internal/api/middleware"
	"github.com/noa10/mataresit-sub018/internal/config"
	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/internal/core/metrics"
	"github.com/noa10/mataresit-sub018/internal/core/metricstore"
	"github.com/noa10/mataresit-sub018/internal/database"
	"github.com/noa10/mataresit-sub018/internal/websocket"
)

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	cfg *config.Config,
	repos *database.Repositories,
	logger *logrus.Logger,
	wsHub *websocket.Hub,
	engine *alerting.Engine,
	instances *alerting.InstanceManager,
	dispatcher *alerting.Dispatcher,
	healthMonitor *alerting.HealthMonitor,
	samples *metricstore.Store,
	collector metrics.Collector,
) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()

	r.Use(middleware.ErrorHandlingMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))
	if cfg.Security.EnableCORS {
		r.Use(middleware.CORSMiddleware(cfg.Security.AllowedOrigins))
	}
	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(cfg.Security.RateLimiting.RequestsPerMinute)
		r.Use(limiter.RateLimitMiddleware())
	}
	if collector != nil {
		r.Use(middleware.MetricsMiddleware(collector))
	}

	h := handlers.NewHandlers(cfg, repos, logger, wsHub, engine, instances, dispatcher, healthMonitor, samples)

	r.GET("/health", h.Health)
	r.GET("/ws", websocket.HandleWebSocketGin(wsHub))
	if collector != nil && cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.ListAlerts)
			alerts.GET("/statistics", h.AlertStatistics)
			alerts.GET("/:id", h.GetAlert)
			alerts.GET("/:id/history", h.AlertHistory)
			alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alerts.POST("/:id/resolve", h.ResolveAlert)
		}

		rules := v1.Group("/rules")
		{
			rules.GET("", h.ListRules)
			rules.GET("/:id", h.GetRule)
			rules.POST("", h.CreateRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
		}

		channels := v1.Group("/channels")
		{
			channels.GET("", h.ListChannels)
			channels.GET("/:id", h.GetChannel)
			channels.POST("", h.CreateChannel)
			channels.POST("/:id/test", h.TestChannel)
			channels.PUT("/:id", h.UpdateChannel)
			channels.DELETE("/:id", h.DeleteChannel)
		}

		policies := v1.Group("/escalation-policies")
		{
			policies.GET("", h.ListPolicies)
			policies.GET("/:id", h.GetPolicy)
			policies.POST("", h.CreatePolicy)
			policies.PUT("/:id", h.UpdatePolicy)
			policies.DELETE("/:id", h.DeletePolicy)
		}

		windows := v1.Group("/maintenance-windows")
		{
			windows.GET("", h.ListWindows)
			windows.GET("/:id", h.GetWindow)
			windows.POST("", h.CreateWindow)
			windows.PUT("/:id", h.UpdateWindow)
			windows.DELETE("/:id", h.DeleteWindow)
		}

		samples := v1.Group("/metrics")
		{
			samples.GET("/samples", h.ListSamples)
			samples.POST("/samples", h.IngestSample)
		}

		v1.GET("/dashboard", h.GetDashboard)
	}

	return r
}
