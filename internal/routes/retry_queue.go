package routes

import (
	"github.com/gin-gonic/gin"
	"perpcontrol/internal/handlers"
)

// SetupRetryQueueRoutes sets up all routes related to the retry queue and orphaned resources
func SetupRetryQueueRoutes(r *gin.Engine) {
	retry := r.Group("/retry-queue")
	{
		retry.GET("", handlers.ListRetryEntries)
		retry.POST("/:id/cancel", handlers.CancelRetryEntry)
	}

	orphan := r.Group("/orphaned-resource")
	{
		orphan.GET("", handlers.ListOrphanedResources)
	}
}
