package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"perpcontrol/internal/models"
	dbconfig "perpcontrol/pkg/config"
)

// GetPositionsByBotID returns the bot's cached position snapshots
func GetPositionsByBotID(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("bot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot_id format"})
		return
	}

	snapshots, err := st.Snapshots(uint(botID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshots)
}

// TriggerReconcile runs an on-demand reconciliation pass for one bot, used
// after a suspected missed webhook or a timed-out execution.
func TriggerReconcile(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("bot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot_id format"})
		return
	}

	var bot models.BotConfig
	if err := dbconfig.DB.First(&bot, botID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	if err := reconciler.Reconcile(c.Request.Context(), &bot); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reconciled"})
}

// GetReconciliationNotes returns the drift-correction audit trail for a bot
func GetReconciliationNotes(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("bot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot_id format"})
		return
	}

	var notes []models.ReconciliationNote
	if err := dbconfig.DB.Where("bot_id = ?", botID).
		Order("corrected_at DESC").
		Limit(100).
		Find(&notes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, notes)
}
