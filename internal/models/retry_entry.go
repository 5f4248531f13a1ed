package models

import (
	"time"
)

// Retry entry statuses.
const (
	RetryStatusPending    = "pending"
	RetryStatusProcessing = "processing"
	RetryStatusSucceeded  = "succeeded"
	RetryStatusExhausted  = "exhausted"
)

// RetryEntry is a deferred trade awaiting re-attempt. Queue state lives here
// rather than in memory so a crash mid-retry does not lose the trade.
type RetryEntry struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	TradeRecordID uint      `gorm:"not null" json:"trade_record_id"`
	IntentID      uint      `gorm:"not null" json:"intent_id"`
	BotID         uint      `gorm:"not null;index" json:"bot_id"`
	Market        string    `gorm:"size:32;not null" json:"market"`
	Side          string    `gorm:"size:10;not null" json:"side"`
	Size          float64   `gorm:"not null" json:"size"`
	ReduceOnly    bool      `gorm:"default:false" json:"reduce_only"`
	Unsized       bool      `gorm:"default:false" json:"unsized"`
	Attempt       int       `gorm:"not null;default:1" json:"attempt"`
	MaxAttempts   int       `gorm:"not null;default:5" json:"max_attempts"`
	NextRetryAt   time.Time `gorm:"not null;index" json:"next_retry_at"`
	LastError     string    `gorm:"type:text;default:''" json:"last_error"`
	Status        string    `gorm:"size:10;not null;index" json:"status"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (RetryEntry) TableName() string {
	return "retry_entry"
}
