package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"perpcontrol/internal/models"
	dbconfig "perpcontrol/pkg/config"
)

// MarketConfigRequest represents the request body for creating a market
type MarketConfigRequest struct {
	Symbol       string  `json:"symbol" binding:"required"`
	MarketIndex  *int    `json:"market_index" binding:"required"`
	BaseDecimals int     `json:"base_decimals"`
	MaxLeverage  int     `json:"max_leverage" binding:"required"`
	MinOrderSize float64 `json:"min_order_size"`
	TickSize     float64 `json:"tick_size"`
}

// ListMarkets returns all configured markets
func ListMarkets(c *gin.Context) {
	var rows []models.MarketConfig
	if err := dbconfig.DB.Order("market_index ASC").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CreateMarket adds a market mapping and reloads the in-memory registry
func CreateMarket(c *gin.Context) {
	var req MarketConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decimals := req.BaseDecimals
	if decimals == 0 {
		decimals = 9
	}
	market := models.MarketConfig{
		Symbol:       req.Symbol,
		MarketIndex:  *req.MarketIndex,
		BaseDecimals: decimals,
		MaxLeverage:  req.MaxLeverage,
		MinOrderSize: req.MinOrderSize,
		TickSize:     req.TickSize,
		Active:       true,
	}
	if err := dbconfig.DB.Create(&market).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := markets.Reload(dbconfig.DB); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Market saved but registry reload failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, market)
}
