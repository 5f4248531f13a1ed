package routes

import (
	"github.com/gin-gonic/gin"
	"perpcontrol/internal/handlers"
)

// SetupTradeRecordRoutes sets up all routes related to Trade Record queries
func SetupTradeRecordRoutes(r *gin.Engine) {
	trade := r.Group("/trade-record")
	{
		trade.GET("/:id", handlers.GetTradeRecord)

		// Filter operations
		trade.GET("/bot/:bot_id", handlers.GetTradeRecordsByBotID)
	}

	intent := r.Group("/trade-intent")
	{
		intent.GET("/bot/:bot_id", handlers.GetIntentsByBotID)
	}
}
