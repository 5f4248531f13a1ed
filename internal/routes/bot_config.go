package routes

import (
	"github.com/gin-gonic/gin"
	"perpcontrol/internal/handlers"
)

// SetupBotConfigRoutes sets up all routes related to Bot Config management
func SetupBotConfigRoutes(r *gin.Engine) {
	bot := r.Group("/bot-config")
	{
		// Standard CRUD operations
		bot.GET("", handlers.ListBots)
		bot.GET("/:id", handlers.GetBot)
		bot.POST("", handlers.CreateBot)
		bot.PUT("/:id", handlers.UpdateBot)
		bot.DELETE("/:id", handlers.DeleteBot)

		// Lifecycle operations
		bot.POST("/:id/pause", handlers.PauseBot)
		bot.POST("/:id/resume", handlers.ResumeBot)
		bot.POST("/:id/reconcile", handlers.TriggerReconcile)
	}
}
