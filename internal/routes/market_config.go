package routes

import (
	"github.com/gin-gonic/gin"
	"perpcontrol/internal/handlers"
)

// SetupMarketConfigRoutes sets up all routes related to Market Config management
func SetupMarketConfigRoutes(r *gin.Engine) {
	market := r.Group("/market-config")
	{
		market.GET("", handlers.ListMarkets)
		market.POST("", handlers.CreateMarket)
	}
}
