package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradelens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, log *zap.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestLogger(log))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		enhance := v1.Group("/enhance")
		{
			enhance.POST("/batch", handler.EnhanceBatch)
			enhance.POST("/resume", handler.ResumeEnhancement)
		}

		hierarchy := v1.Group("/hierarchy")
		{
			hierarchy.GET("/context/:code", handler.HierarchyContext)
			hierarchy.GET("/statistics", handler.HierarchyStatistics)
		}

		products := v1.Group("/products")
		{
			products.GET("/statistics", handler.ProductStatistics)
		}

		rules := v1.Group("/rules")
		{
			rules.GET("", handler.ListRules)
			rules.POST("", handler.CreateRule)
			rules.PUT("/:id", handler.UpdateRule)
			rules.DELETE("/:id", handler.DeleteRule)
		}
	}

	return router
}
