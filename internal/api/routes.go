// Package api assembles the HTTP router.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quantsignal/advisor-go/internal/api/handlers"
	"github.com/quantsignal/advisor-go/internal/middleware"
	"github.com/quantsignal/advisor-go/internal/services"
)

// SetupRoutes registers middleware and endpoints on the router. redisClient
// may be nil when caching is disabled.
func SetupRoutes(router *gin.Engine, logger *logrus.Logger, analyzer *services.Analyzer, backtester *services.Backtester, redisClient *redis.Client) {
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.Tracing(),
	)

	health := handlers.NewHealthHandler(redisClient)
	router.GET("/health", health.Check)

	analysis := handlers.NewAnalysisHandler(analyzer, backtester, logger)
	v1 := router.Group("/api/v1")
	{
		group := v1.Group("/analysis")
		{
			group.POST("/signal", analysis.GenerateSignal)
			group.POST("/backtest", analysis.RunBacktest)
		}
	}
}
