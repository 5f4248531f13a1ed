package routes

import (
	"github.com/gin-gonic/gin"
	"perpcontrol/internal/handlers"
)

// SetupPositionRoutes sets up all routes related to position snapshots and reconciliation
func SetupPositionRoutes(r *gin.Engine) {
	position := r.Group("/position")
	{
		position.GET("/bot/:bot_id", handlers.GetPositionsByBotID)
	}

	recon := r.Group("/reconciliation-note")
	{
		recon.GET("/bot/:bot_id", handlers.GetReconciliationNotes)
	}
}
