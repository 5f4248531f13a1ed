package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"perpcontrol/internal/executor"
	"perpcontrol/internal/signal"
	"perpcontrol/internal/store"
)

// maxWebhookBody bounds the accepted alert payload size.
const maxWebhookBody = 64 * 1024

// HandleWebhook receives a TradingView alert for a bot. Validation and the
// idempotency check run synchronously; execution completes asynchronously so
// the webhook sender gets a fast response.
func HandleWebhook(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("bot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot_id format"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	token := c.GetHeader("X-Signal-Token")
	if token == "" {
		token = c.Query("token")
	}

	intent, err := pipeline.HandleWebhook(c.Request.Context(), uint(botID), token, body)
	if err != nil {
		var validationErr *signal.ValidationError
		var dupErr *signal.DuplicateSignalError
		var authErr *executor.UnauthorizedSignalError
		var inactiveErr *executor.BotInactiveError

		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
		case errors.As(err, &dupErr):
			// Duplicate delivery of an accepted signal. Not a failure, and a
			// 200 keeps the sender from re-delivering again.
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		case errors.As(err, &authErr):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signal token"})
		case errors.As(err, &inactiveErr):
			c.JSON(http.StatusConflict, gin.H{"error": inactiveErr.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "queued",
		"intent_id": intent.ID,
		"action":    intent.Action,
	})
}
