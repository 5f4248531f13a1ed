package models

import (
	"encoding/json"
	"time"
)

// Trade intent actions.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// Trade directions.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// TradeIntent is the canonical, validated form of one webhook signal.
// Immutable once written; later signals supersede it, they never mutate it.
type TradeIntent struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	BotID      uint            `gorm:"not null;index" json:"bot_id"`
	Action     string          `gorm:"size:10;not null" json:"action"` // open / close
	Direction  string          `gorm:"size:10;not null" json:"direction"`
	Percent    float64         `gorm:"not null" json:"percent"` // percentage of max position size
	Symbol     string          `gorm:"size:32;not null" json:"symbol"`
	RawPayload json.RawMessage `gorm:"type:jsonb" json:"raw_payload"`
	SignalHash string          `gorm:"size:64;not null" json:"signal_hash"`
	ReceivedAt time.Time       `json:"received_at" gorm:"autoCreateTime"`
}

func (TradeIntent) TableName() string {
	return "trade_intent"
}
