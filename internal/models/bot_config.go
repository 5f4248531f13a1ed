package models

import (
	"time"
)

// BotConfig represents one user-configured trading bot. Each bot trades a
// single perp market through its own venue subaccount.
type BotConfig struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	WalletAddress    string    `gorm:"size:64;not null;index" json:"wallet_address"`
	Name             string    `gorm:"size:64;not null" json:"name"`
	Market           string    `gorm:"size:32;not null" json:"market"`
	Leverage         int       `gorm:"not null;default:1" json:"leverage"`
	MaxPositionSize  float64   `gorm:"not null" json:"max_position_size"`
	SideRestriction  string    `gorm:"size:10;not null;default:'both'" json:"side_restriction"` // long / short / both
	Active           bool      `gorm:"default:true" json:"active"`
	ExecutionEnabled bool      `gorm:"default:false" json:"execution_enabled"`
	PauseReason      string    `gorm:"size:255;default:''" json:"pause_reason"`
	SignalToken      string    `gorm:"size:64;default:''" json:"-"`
	// Authority is the bot's venue signing key pair: pubkey in the clear,
	// private key AES-GCM encrypted. One authority per bot isolates margin
	// and liquidation risk between a user's bots.
	Authority string `gorm:"size:64;default:''" json:"authority"`
	// Venue subaccount is created lazily on the first funded trade.
	SubaccountID        *uint16 `json:"subaccount_id"`
	SubaccountStatus    string  `gorm:"size:16;default:''" json:"subaccount_status"` // '' / initialized / funded
	EncryptedKey        string  `gorm:"type:text" json:"-"`
	ConsecutiveFailures int     `gorm:"default:0" json:"consecutive_failures"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (BotConfig) TableName() string {
	return "bot_config"
}
