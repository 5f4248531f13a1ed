package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"perpcontrol/internal/models"
	dbconfig "perpcontrol/pkg/config"
	"perpcontrol/pkg/venue"
)

// BotConfigRequest represents the request body for creating a bot
type BotConfigRequest struct {
	WalletAddress   string  `json:"wallet_address" binding:"required"`
	Name            string  `json:"name" binding:"required"`
	Market          string  `json:"market" binding:"required"`
	Leverage        int     `json:"leverage" binding:"required"`
	MaxPositionSize float64 `json:"max_position_size" binding:"required"`
	SideRestriction string  `json:"side_restriction"`
	SignalToken     string  `json:"signal_token"`
}

// BotConfigUpdateRequest represents the request body for updating a bot (all fields optional)
type BotConfigUpdateRequest struct {
	Name             *string  `json:"name"`
	Leverage         *int     `json:"leverage"`
	MaxPositionSize  *float64 `json:"max_position_size"`
	SideRestriction  *string  `json:"side_restriction"`
	ExecutionEnabled *bool    `json:"execution_enabled"`
	SignalToken      *string  `json:"signal_token"`
}

// CreateBot creates a new bot with a freshly generated venue authority key.
// The private key is stored encrypted and never returned.
func CreateBot(c *gin.Context) {
	var req BotConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := markets.Lookup(req.Market); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown market: " + req.Market})
		return
	}
	if req.Leverage < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Leverage must be >= 1"})
		return
	}
	if req.MaxPositionSize <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Max position size must be positive"})
		return
	}
	side := req.SideRestriction
	if side == "" {
		side = "both"
	}
	if side != "both" && side != models.DirectionLong && side != models.DirectionShort {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid side restriction"})
		return
	}

	account, err := keys.GenerateKeyPair()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate bot key"})
		return
	}
	encrypted, err := keys.EncryptPrivateKey(account.PrivateKey)
	venue.ZeroKey(account.PrivateKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encrypt bot key"})
		return
	}

	bot := models.BotConfig{
		WalletAddress:   req.WalletAddress,
		Name:            req.Name,
		Market:          req.Market,
		Leverage:        req.Leverage,
		MaxPositionSize: req.MaxPositionSize,
		SideRestriction: side,
		SignalToken:     req.SignalToken,
		Authority:       account.PublicKey.ToBase58(),
		EncryptedKey:    encrypted,
		Active:          true,
	}
	if err := dbconfig.DB.Create(&bot).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bot)
}

// ListBots returns all bots, optionally filtered by wallet
func ListBots(c *gin.Context) {
	query := dbconfig.DB.Model(&models.BotConfig{})
	if wallet := c.Query("wallet"); wallet != "" {
		query = query.Where("wallet_address = ?", wallet)
	}
	var bots []models.BotConfig
	if err := query.Order("created_at DESC").Find(&bots).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bots)
}

// GetBot returns a specific bot by ID
func GetBot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var bot models.BotConfig
	if err := dbconfig.DB.First(&bot, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, bot)
}

// UpdateBot updates mutable bot settings. Leverage changes apply only to
// subsequent orders, never retroactively to an open position.
func UpdateBot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var bot models.BotConfig
	if err := dbconfig.DB.First(&bot, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	var req BotConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Leverage != nil {
		if *req.Leverage < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Leverage must be >= 1"})
			return
		}
		updates["leverage"] = *req.Leverage
	}
	if req.MaxPositionSize != nil {
		if *req.MaxPositionSize <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Max position size must be positive"})
			return
		}
		updates["max_position_size"] = *req.MaxPositionSize
	}
	if req.SideRestriction != nil {
		updates["side_restriction"] = *req.SideRestriction
	}
	if req.ExecutionEnabled != nil {
		updates["execution_enabled"] = *req.ExecutionEnabled
	}
	if req.SignalToken != nil {
		updates["signal_token"] = *req.SignalToken
	}

	if err := dbconfig.DB.Model(&bot).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bot)
}

// PauseBot manually pauses a bot
func PauseBot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	reason := c.DefaultQuery("reason", "paused by user")
	if err := st.PauseBot(uint(id), reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

// ResumeBot reactivates a paused bot and clears its pause reason and failure
// counter.
func ResumeBot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	if err := dbconfig.DB.Model(&models.BotConfig{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"active":               true,
			"pause_reason":         "",
			"consecutive_failures": 0,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

// DeleteBot removes a bot. Refused while the bot still has an open position.
func DeleteBot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var open int64
	if err := dbconfig.DB.Model(&models.PositionSnapshot{}).
		Where("bot_id = ? AND ABS(base_size) > ?", id, 1e-9).
		Count(&open).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if open > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Bot has open positions, close them first"})
		return
	}

	if err := dbconfig.DB.Delete(&models.BotConfig{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
