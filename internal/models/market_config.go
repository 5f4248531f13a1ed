package models

import (
	"time"
)

// MarketConfig maps a signal symbol to a venue perp market. Kept as data so
// listing a new market is a row insert, not a code change.
type MarketConfig struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Symbol       string    `gorm:"size:32;not null;uniqueIndex" json:"symbol"` // e.g. SOL-PERP
	MarketIndex  int       `gorm:"not null" json:"market_index"`
	BaseDecimals int       `gorm:"not null;default:9" json:"base_decimals"`
	MaxLeverage  int       `gorm:"not null" json:"max_leverage"`
	MinOrderSize float64   `gorm:"not null;default:0" json:"min_order_size"` // base units
	TickSize     float64   `gorm:"not null;default:0" json:"tick_size"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (MarketConfig) TableName() string {
	return "market_config"
}
