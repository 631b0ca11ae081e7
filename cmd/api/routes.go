package main

import (
	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/middleware"
)

func setupRouter(api *API, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(api.logger))

	// Health check
	router.GET("/health", api.healthCheck)

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth())
	v1.Use(middleware.RateLimit(limiter))
	{
		// Plans and entitlements
		v1.GET("/plans", api.listPlans)
		v1.POST("/entitlements/check", api.checkEntitlement)

		// Channels
		v1.POST("/channels", api.createChannel)
		v1.GET("/channels", api.listChannels)
		v1.GET("/channels/:id", api.getChannel)
		v1.POST("/channels/:id/provision", api.provisionChannel)
		v1.DELETE("/channels/:id", api.deleteChannel)
		v1.POST("/channels/:id/check-transcoding", api.checkTranscoding)

		// Operator routes
		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/channels/:id/maintenance", api.enterMaintenance)
			admin.DELETE("/channels/:id/maintenance", api.exitMaintenance)
			admin.POST("/channels/:id/terminate", api.terminateChannel)
		}
	}

	return router
}
