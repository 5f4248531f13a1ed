package models

import (
	"time"
)

// PositionSnapshot is the locally cached view of a bot's open position.
// At most one row per (bot, market). Updated on every successful trade and
// overwritten wholesale when the reconciler detects drift from venue truth.
// UpdatedAt doubles as the optimistic-concurrency token: writers compare the
// value they read before overwriting.
type PositionSnapshot struct {
	ID            uint    `gorm:"primarykey" json:"id"`
	BotID         uint    `gorm:"not null;uniqueIndex:idx_position_bot_market" json:"bot_id"`
	Market        string  `gorm:"size:32;not null;uniqueIndex:idx_position_bot_market" json:"market"`
	BaseSize      float64 `gorm:"not null" json:"base_size"` // signed, negative = short
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CostBasis     float64 `json:"cost_basis"`
	RealizedPnl   float64 `json:"realized_pnl"`
	LastTradeID   *uint   `json:"last_trade_id"`

	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PositionSnapshot) TableName() string {
	return "position_snapshot"
}
