package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deaconkarim/deacon-insights/internal/services"
)

// NewRouter builds the gin engine with health, metrics and insights routes
func NewRouter(handlers *Handlers, monitoring *services.MonitoringService, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger.Named("http")))

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept-Encoding, Authorization")
		c.Header("Access-Control-Expose-Headers", "Content-Length")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", monitoring.HandleHealthCheck)
	router.GET("/health/detailed", monitoring.HandleDetailedHealth)
	router.GET("/metrics", monitoring.HandleMetrics)

	apiV1 := router.Group("/api/v1")
	RegisterInsightsRoutes(apiV1, handlers)

	return router
}

// RegisterInsightsRoutes mounts the insights endpoints under group
func RegisterInsightsRoutes(group *gin.RouterGroup, handlers *Handlers) {
	insights := group.Group("/insights")
	{
		insights.GET("/dashboard", handlers.GetDashboard)
		insights.GET("/digest", handlers.GetDigest)
		insights.GET("/at-risk", handlers.GetAtRiskMembers)
		insights.GET("/donations", handlers.GetDonationInsights)
		insights.GET("/attendance-predictions", handlers.GetAttendancePredictions)
		insights.DELETE("/cache", handlers.ClearCache)
		insights.GET("/cache/stats", handlers.GetCacheStats)
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
