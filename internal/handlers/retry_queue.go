package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"perpcontrol/internal/models"
	dbconfig "perpcontrol/pkg/config"
)

// ListRetryEntries returns retry queue entries, optionally filtered by status
func ListRetryEntries(c *gin.Context) {
	query := dbconfig.DB.Model(&models.RetryEntry{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if botID := c.Query("bot_id"); botID != "" {
		query = query.Where("bot_id = ?", botID)
	}

	var entries []models.RetryEntry
	if err := query.Order("next_retry_at ASC").Limit(200).Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ListOrphanedResources returns venue resources awaiting cleanup
func ListOrphanedResources(c *gin.Context) {
	query := dbconfig.DB.Model(&models.OrphanedResource{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var rows []models.OrphanedResource
	if err := query.Order("created_at ASC").Limit(200).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CancelRetryEntry marks a pending retry entry exhausted so it is never
// re-attempted.
func CancelRetryEntry(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	res := dbconfig.DB.Model(&models.RetryEntry{}).
		Where("id = ? AND status = ?", id, models.RetryStatusPending).
		Updates(map[string]interface{}{
			"status":     models.RetryStatusExhausted,
			"last_error": "cancelled by operator",
		})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Entry not pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
