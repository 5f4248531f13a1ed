package models

import (
	"time"
)

// Trade record statuses.
const (
	TradeStatusPending  = "pending"
	TradeStatusExecuted = "executed"
	TradeStatusFailed   = "failed"
	// TradeStatusUnknown marks an attempt whose venue call timed out. The
	// order may still have landed; the reconciler settles the outcome.
	TradeStatusUnknown = "unknown"
)

// TradeRecord is the append-only outcome log of execution attempts. Only
// status and terminal fields are ever updated in place (e.g. an "unknown"
// record resolved by the reconciler).
type TradeRecord struct {
	ID           uint     `gorm:"primarykey" json:"id"`
	BotID        uint     `gorm:"not null;index" json:"bot_id"`
	IntentID     uint     `gorm:"not null" json:"intent_id"`
	Market       string   `gorm:"size:32;not null" json:"market"`
	Side         string   `gorm:"size:10;not null" json:"side"`
	Size         float64  `gorm:"not null" json:"size"` // base asset units
	Notional     float64  `json:"notional"`
	ReduceOnly   bool     `gorm:"default:false" json:"reduce_only"`
	FillPrice    *float64 `json:"fill_price"`
	Fee          float64  `json:"fee"`
	RealizedPnl  *float64 `json:"realized_pnl"`
	Status       string   `gorm:"size:10;not null;index" json:"status"`
	Signature    string   `gorm:"size:128;default:''" json:"signature"`
	ErrorMessage string   `gorm:"type:text;default:''" json:"error_message"`

	ExecutedAt time.Time `json:"executed_at" gorm:"autoCreateTime"`
}

func (TradeRecord) TableName() string {
	return "trade_record"
}
