package routes

import (
	"github.com/gin-gonic/gin"
	"perpcontrol/internal/handlers"
	"perpcontrol/internal/middleware"
)

// SetupWebhookRoutes sets up the TradingView webhook ingestion route
func SetupWebhookRoutes(r *gin.Engine) {
	webhook := r.Group("/webhook")
	webhook.Use(middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}))
	{
		webhook.POST("/:bot_id", handlers.HandleWebhook)
	}
}
